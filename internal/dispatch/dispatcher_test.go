package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
)

type fakeCampaignStore struct {
	mu       sync.Mutex
	campaign *domain.Campaign
	getErr   error

	sentCount   int
	failedCount int

	// Closed-over signal: every terminal transition pushes its status here
	// so tests can wait for the async run to finish.
	terminal chan domain.CampaignStatus
}

func newFakeCampaignStore(c *domain.Campaign) *fakeCampaignStore {
	return &fakeCampaignStore{
		campaign: c,
		terminal: make(chan domain.CampaignStatus, 1),
	}
}

func (f *fakeCampaignStore) GetByID(_ context.Context, id int64) (*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.campaign == nil || f.campaign.ID != id {
		return nil, nil
	}
	copied := *f.campaign
	return &copied, nil
}

func (f *fakeCampaignStore) MarkSending(_ context.Context, _ int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaign.Status = domain.CampaignSending
	f.sentCount = 0
	f.failedCount = 0
	return nil
}

func (f *fakeCampaignStore) MarkCompleted(_ context.Context, _ int64, _ time.Time) error {
	f.mu.Lock()
	f.campaign.Status = domain.CampaignCompleted
	f.mu.Unlock()
	f.terminal <- domain.CampaignCompleted
	return nil
}

func (f *fakeCampaignStore) MarkFailed(_ context.Context, _ int64) error {
	f.mu.Lock()
	f.campaign.Status = domain.CampaignFailed
	f.mu.Unlock()
	f.terminal <- domain.CampaignFailed
	return nil
}

func (f *fakeCampaignStore) UpdateCounters(_ context.Context, _ int64, sent, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentCount = sent
	f.failedCount = failed
	return nil
}

func (f *fakeCampaignStore) counters() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sentCount, f.failedCount
}

func (f *fakeCampaignStore) status() domain.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaign.Status
}

type fakeLogStore struct {
	mu         sync.Mutex
	nextID     int64
	logs       []domain.MessageLog
	createErr  error
	pendingErr error
	sentErr    error

	sentIDs    []int64
	failedIDs  []int64
	errorsByID map[int64]string
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{errorsByID: make(map[int64]string)}
}

func (f *fakeLogStore) BulkCreate(_ context.Context, logs []domain.MessageLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, log := range logs {
		f.nextID++
		log.ID = f.nextID
		f.logs = append(f.logs, log)
	}
	return nil
}

func (f *fakeLogStore) DeleteByCampaign(_ context.Context, campaignID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []domain.MessageLog
	for _, log := range f.logs {
		if log.CampaignID != campaignID {
			kept = append(kept, log)
		}
	}
	f.logs = kept
	return nil
}

func (f *fakeLogStore) GetPending(_ context.Context, campaignID int64) ([]domain.MessageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	var pending []domain.MessageLog
	for _, log := range f.logs {
		if log.CampaignID == campaignID && log.Status == domain.LogPending {
			pending = append(pending, log)
		}
	}
	return pending, nil
}

func (f *fakeLogStore) MarkAsSent(_ context.Context, id int64, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sentErr != nil {
		return f.sentErr
	}
	f.sentIDs = append(f.sentIDs, id)
	return nil
}

func (f *fakeLogStore) MarkAsFailed(_ context.Context, id int64, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedIDs = append(f.failedIDs, id)
	f.errorsByID[id] = errorMessage
	return nil
}

func (f *fakeLogStore) createdLogs() []domain.MessageLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.MessageLog, len(f.logs))
	copy(out, f.logs)
	return out
}

type fakeSender struct {
	mu       sync.Mutex
	sendAt   []time.Time
	phones   []string
	bodies   []string
	failFor  map[string]string // phone -> error message
	entered  chan struct{}     // signaled once on first send, if set
	gate     chan struct{}     // first send blocks until closed, if set
	gateOnce sync.Once
}

func (f *fakeSender) Send(_ context.Context, phoneNumber, body string, _ *domain.Attachment) domain.SendOutcome {
	if f.gate != nil {
		f.gateOnce.Do(func() {
			if f.entered != nil {
				close(f.entered)
			}
			<-f.gate
		})
	}

	f.mu.Lock()
	f.sendAt = append(f.sendAt, time.Now())
	f.phones = append(f.phones, phoneNumber)
	f.bodies = append(f.bodies, body)
	errMsg, fail := f.failFor[phoneNumber]
	f.mu.Unlock()

	if fail {
		return domain.SendOutcome{Success: false, ErrorMessage: errMsg}
	}
	return domain.SendOutcome{Success: true, MessageID: "wamid." + phoneNumber}
}

func (f *fakeSender) sentPhones() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.phones))
	copy(out, f.phones)
	return out
}

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:       1,
		Name:     "Welcome campaign",
		Template: "Hi {name}, welcome!",
		Status:   domain.CampaignDraft,
		Recipients: []domain.Recipient{
			{Name: "Ana", PhoneNumber: "+905551111111"},
			{Name: "Ben", PhoneNumber: "+905552222222"},
			{Name: "Cem", PhoneNumber: "+905553333333"},
		},
		TotalCount: 3,
	}
}

func waitForTerminal(t *testing.T, store *fakeCampaignStore) domain.CampaignStatus {
	t.Helper()
	select {
	case status := <-store.terminal:
		return status
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the run to finish")
		return ""
	}
}

func TestStart_CompletesAndTracksOutcomes(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	sender := &fakeSender{}
	d := NewDispatcher(store, logs, sender, nil, time.Millisecond)

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if status := waitForTerminal(t, store); status != domain.CampaignCompleted {
		t.Fatalf("expected campaign completed, got %s", status)
	}
	d.Wait()

	created := logs.createdLogs()
	if len(created) != 3 {
		t.Fatalf("expected 3 message logs, got %d", len(created))
	}

	// Logs carry the personalized body, in recipient order.
	if created[0].RecipientName != "Ana" || created[0].PersonalizedBody != "Hi Ana, welcome!" {
		t.Errorf("unexpected first log: %+v", created[0])
	}
	if created[2].RecipientName != "Cem" {
		t.Errorf("expected recipient order preserved, got %+v", created)
	}

	phones := sender.sentPhones()
	if len(phones) != 3 || phones[0] != "+905551111111" || phones[2] != "+905553333333" {
		t.Errorf("expected sends in recipient order, got %v", phones)
	}

	sent, failed := store.counters()
	if sent != 3 || failed != 0 {
		t.Errorf("expected counters 3/0, got %d/%d", sent, failed)
	}

	if d.IsRunning(1) {
		t.Errorf("expected run to be released after completion")
	}
}

func TestStart_RestartSupersedesPreviousRun(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	sender := &fakeSender{}
	d := NewDispatcher(store, logs, sender, nil, time.Millisecond)

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("first Start returned error: %v", err)
	}
	if status := waitForTerminal(t, store); status != domain.CampaignCompleted {
		t.Fatalf("expected first run to complete, got %s", status)
	}
	d.Wait()

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("restart returned error: %v", err)
	}
	if status := waitForTerminal(t, store); status != domain.CampaignCompleted {
		t.Fatalf("expected second run to complete, got %s", status)
	}
	d.Wait()

	// The second run replaces the first: counters start over and the old
	// log batch is superseded, so sent+failed never exceeds the recipient
	// count.
	sent, failed := store.counters()
	if sent != 3 || failed != 0 {
		t.Errorf("expected counters 3/0 after restart, got %d/%d", sent, failed)
	}
	if sent+failed != store.campaign.TotalCount {
		t.Errorf("expected sent+failed == totalCount, got %d+%d vs %d", sent, failed, store.campaign.TotalCount)
	}
	if got := len(logs.createdLogs()); got != 3 {
		t.Errorf("expected 3 message logs after restart, got %d", got)
	}

	// Each run still messages every recipient once.
	if got := len(sender.sentPhones()); got != 6 {
		t.Errorf("expected 6 provider sends across both runs, got %d", got)
	}
}

func TestStart_SentStatusWriteFailureKeepsDelivery(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	logs.sentErr = errors.New("db timeout")
	d := NewDispatcher(store, logs, &fakeSender{}, nil, time.Millisecond)

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if status := waitForTerminal(t, store); status != domain.CampaignCompleted {
		t.Fatalf("expected campaign completed, got %s", status)
	}
	d.Wait()

	// The provider delivered every message; a failed status write must not
	// turn deliveries into failures.
	sent, failed := store.counters()
	if sent != 3 || failed != 0 {
		t.Errorf("expected counters 3/0, got %d/%d", sent, failed)
	}

	logs.mu.Lock()
	defer logs.mu.Unlock()
	if len(logs.failedIDs) != 0 {
		t.Errorf("expected no logs marked failed, got %v", logs.failedIDs)
	}
}

func TestStart_CampaignNotFound(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	d := NewDispatcher(store, newFakeLogStore(), &fakeSender{}, nil, time.Millisecond)

	if err := d.Start(context.Background(), 42); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestStart_SecondStartRefusedWhileRunning(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	sender := &fakeSender{
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	d := NewDispatcher(store, logs, sender, nil, time.Millisecond)

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("first Start returned error: %v", err)
	}

	select {
	case <-sender.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the first send")
	}

	if err := d.Start(context.Background(), 1); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(sender.gate)
	waitForTerminal(t, store)
	d.Wait()

	// The refused attempt must not have created a second batch of logs.
	if got := len(logs.createdLogs()); got != 3 {
		t.Errorf("expected 3 message logs, got %d", got)
	}
}

func TestStart_RefusesStoredSendingStatus(t *testing.T) {
	campaign := testCampaign()
	campaign.Status = domain.CampaignSending
	store := newFakeCampaignStore(campaign)
	d := NewDispatcher(store, newFakeLogStore(), &fakeSender{}, nil, time.Millisecond)

	if err := d.Start(context.Background(), 1); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning for stored sending status, got %v", err)
	}
}

func TestStart_PartialFailureContinues(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	sender := &fakeSender{
		failFor: map[string]string{"+905552222222": "rate limited"},
	}
	d := NewDispatcher(store, logs, sender, nil, time.Millisecond)

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if status := waitForTerminal(t, store); status != domain.CampaignCompleted {
		t.Fatalf("expected campaign completed despite failures, got %s", status)
	}
	d.Wait()

	sent, failed := store.counters()
	if sent != 2 || failed != 1 {
		t.Errorf("expected counters 2/1, got %d/%d", sent, failed)
	}

	logs.mu.Lock()
	defer logs.mu.Unlock()
	if len(logs.failedIDs) != 1 {
		t.Fatalf("expected 1 failed log, got %d", len(logs.failedIDs))
	}
	if msg := logs.errorsByID[logs.failedIDs[0]]; msg != "rate limited" {
		t.Errorf("expected error message %q, got %q", "rate limited", msg)
	}
	if len(logs.sentIDs) != 2 {
		t.Errorf("expected 2 sent logs, got %d", len(logs.sentIDs))
	}
}

func TestStart_PendingFetchFailureMarksCampaignFailed(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	logs.pendingErr = errors.New("db gone")
	d := NewDispatcher(store, logs, &fakeSender{}, nil, time.Millisecond)

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if status := waitForTerminal(t, store); status != domain.CampaignFailed {
		t.Fatalf("expected campaign failed, got %s", status)
	}
	d.Wait()

	// The claim is released, so the campaign can be started again.
	if d.IsRunning(1) {
		t.Errorf("expected run to be released after failure")
	}
	logs.mu.Lock()
	logs.pendingErr = nil
	logs.mu.Unlock()
	if err := d.Start(context.Background(), 1); err != nil {
		t.Errorf("expected restart after failure to be accepted, got %v", err)
	}
	waitForTerminal(t, store)
	d.Wait()
}

func TestStart_BulkCreateFailure(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	logs.createErr = errors.New("insert failed")
	d := NewDispatcher(store, logs, &fakeSender{}, nil, time.Millisecond)

	err := d.Start(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "failed to create message logs") {
		t.Fatalf("expected log creation error, got %v", err)
	}

	if status := waitForTerminal(t, store); status != domain.CampaignFailed {
		t.Fatalf("expected campaign failed, got %s", status)
	}
	if d.IsRunning(1) {
		t.Errorf("expected claim to be released after bulk create failure")
	}
}

func TestStart_ContextCancelFailsCampaign(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	sender := &fakeSender{
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	d := NewDispatcher(store, logs, sender, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx, 1); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case <-sender.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the first send")
	}
	close(sender.gate)
	cancel()

	if status := waitForTerminal(t, store); status != domain.CampaignFailed {
		t.Fatalf("expected cancelled campaign to end failed, got %s", status)
	}
	d.Wait()
}

func TestDelayBetweenSends(t *testing.T) {
	const delay = 30 * time.Millisecond

	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	sender := &fakeSender{}
	d := NewDispatcher(store, logs, sender, nil, delay)

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitForTerminal(t, store)
	d.Wait()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sendAt) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(sender.sendAt))
	}
	for i := 1; i < len(sender.sendAt); i++ {
		if gap := sender.sendAt[i].Sub(sender.sendAt[i-1]); gap < delay {
			t.Errorf("gap between sends %d and %d was %v, expected at least %v", i-1, i, gap, delay)
		}
	}
}

func TestStatus_ReportsActiveRuns(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	sender := &fakeSender{
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	d := NewDispatcher(store, logs, sender, nil, time.Millisecond)

	if status := d.Status(); status.Busy {
		t.Fatalf("expected idle engine before any run")
	}

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case <-sender.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the first send")
	}

	status := d.Status()
	if !status.Busy {
		t.Errorf("expected busy engine during a run")
	}
	if len(status.ActiveCampaigns) != 1 {
		t.Fatalf("expected 1 active campaign, got %d", len(status.ActiveCampaigns))
	}
	run := status.ActiveCampaigns[0]
	if run.CampaignID != 1 || run.Name != "Welcome campaign" || run.TotalCount != 3 {
		t.Errorf("unexpected active run: %+v", run)
	}

	close(sender.gate)
	waitForTerminal(t, store)
	d.Wait()

	if status := d.Status(); status.Busy {
		t.Errorf("expected idle engine after the run finished")
	}
}

func TestCachesSentMessages(t *testing.T) {
	store := newFakeCampaignStore(testCampaign())
	logs := newFakeLogStore()
	cache := &fakeSentCache{}
	d := NewDispatcher(store, logs, &fakeSender{}, cache, time.Millisecond)

	if err := d.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitForTerminal(t, store)
	d.Wait()

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.entries) != 3 {
		t.Fatalf("expected 3 cached sends, got %d", len(cache.entries))
	}
}

type fakeSentCache struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeSentCache) CacheSentMessage(_ context.Context, _, _ int64, providerMessageID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, providerMessageID)
	return nil
}
