package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/okandemir/whatsapp-campaign-service/environments"
	"github.com/okandemir/whatsapp-campaign-service/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			template TEXT NOT NULL,
			image_url VARCHAR(512),
			image_path VARCHAR(512),
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			total_count INT NOT NULL DEFAULT 0,
			sent_count INT NOT NULL DEFAULT 0,
			failed_count INT NOT NULL DEFAULT 0,
			started_at DATETIME,
			completed_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_campaigns_status (status),
			INDEX idx_campaigns_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS campaign_recipients (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			campaign_id BIGINT NOT NULL,
			position INT NOT NULL,
			name VARCHAR(255) NOT NULL,
			phone_number VARCHAR(20) NOT NULL,
			INDEX idx_recipients_campaign (campaign_id, position),
			CONSTRAINT fk_recipients_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns (id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS message_logs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			campaign_id BIGINT NOT NULL,
			recipient_name VARCHAR(255) NOT NULL,
			recipient_phone VARCHAR(20) NOT NULL,
			personalized_body TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			provider_message_id VARCHAR(100),
			error_message TEXT,
			retry_count INT NOT NULL DEFAULT 0,
			sent_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_logs_campaign_status (campaign_id, status),
			INDEX idx_logs_campaign_created (campaign_id, created_at),
			CONSTRAINT fk_logs_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns (id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM campaigns")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d campaigns, skipping seed", count)
		return nil
	}

	result, err := db.Exec(`
		INSERT INTO campaigns (name, template, status, total_count)
		VALUES ('Welcome campaign', 'Hi {name}! Welcome aboard, let us know if you need anything.', 'draft', 3)
	`)
	if err != nil {
		return fmt.Errorf("failed to seed test campaign: %w", err)
	}

	campaignID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get seeded campaign id: %w", err)
	}

	recipients := []struct {
		name  string
		phone string
	}{
		{"Ana", "+905551234567"},
		{"Mehmet", "+905559876543"},
		{"Leyla", "+905551112233"},
	}

	for i, r := range recipients {
		if _, err := db.Exec(
			"INSERT INTO campaign_recipients (campaign_id, position, name, phone_number) VALUES (?, ?, ?, ?)",
			campaignID, i, r.name, r.phone,
		); err != nil {
			return fmt.Errorf("failed to seed test recipients: %w", err)
		}
	}

	logger.Infof("Seeded test campaign with %d recipients", len(recipients))
	return nil
}
