package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/repository"
)

type stubCodeRepository struct {
	mu          sync.Mutex
	records     map[string]*domain.ActivationCode
	bindErr     error
	getErr      error
	updateErr   error
	bindCalls   int
	updateCalls int
}

func newStubCodeRepository() *stubCodeRepository {
	return &stubCodeRepository{records: make(map[string]*domain.ActivationCode)}
}

func (s *stubCodeRepository) put(record domain.ActivationCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := record
	s.records[record.Code] = &copied
}

func (s *stubCodeRepository) GetByCode(_ context.Context, code string) (*domain.ActivationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	record, ok := s.records[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *record
	copied.Devices = append([]domain.DeviceBinding(nil), record.Devices...)
	return &copied, nil
}

func (s *stubCodeRepository) Create(_ context.Context, record domain.ActivationCode) error {
	s.put(record)
	return nil
}

// BindDevice holds the lock across the read-check-write so the stub behaves
// like the transactional repository under concurrent callers.
func (s *stubCodeRepository) BindDevice(_ context.Context, code string, binding domain.DeviceBinding) (*domain.ActivationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindCalls++
	if s.bindErr != nil {
		return nil, s.bindErr
	}
	if s.getErr != nil {
		return nil, s.getErr
	}
	record, ok := s.records[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !record.HasDevice(binding.DeviceID) {
		if record.AtCapacity() {
			return nil, repository.ErrCapacityExceeded
		}
		record.Bind(binding, record.LastUpdated)
	}
	copied := *record
	copied.Devices = append([]domain.DeviceBinding(nil), record.Devices...)
	return &copied, nil
}

func (s *stubCodeRepository) UpdateDevices(_ context.Context, code string, devices []domain.DeviceBinding, status domain.CodeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	record, ok := s.records[code]
	if !ok {
		return repository.ErrNotFound
	}
	record.Devices = devices
	record.Status = status
	return nil
}

type stubIdentityProvider struct {
	mu          sync.Mutex
	createCalls int
	createErrs  []error
	nextUserID  string
	tokenErr    error
}

func (s *stubIdentityProvider) CreateAnonymous(context.Context) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.createCalls
	s.createCalls++
	if call < len(s.createErrs) && s.createErrs[call] != nil {
		return domain.Identity{}, s.createErrs[call]
	}
	userID := s.nextUserID
	if userID == "" {
		userID = fmt.Sprintf("user-%d", call)
	}
	return domain.Identity{UserID: userID}, nil
}

func (s *stubIdentityProvider) IssueIdentityToken(_ context.Context, userID string) (string, error) {
	if s.tokenErr != nil {
		return "", s.tokenErr
	}
	return "identity-token-" + userID, nil
}

type stubSessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.ReaderSession
	saveErr  error
	loadErr  error
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[string]domain.ReaderSession)}
}

func (s *stubSessionStore) Save(_ context.Context, session domain.ReaderSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.sessions[session.UserID] = session
	return nil
}

func (s *stubSessionStore) Load(_ context.Context, userID string) (*domain.ReaderSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	session, ok := s.sessions[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (s *stubSessionStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

type stubTokenStore struct {
	mu      sync.Mutex
	tokens  map[string]domain.AccessToken
	saveErr error
}

func newStubTokenStore() *stubTokenStore {
	return &stubTokenStore{tokens: make(map[string]domain.AccessToken)}
}

func (s *stubTokenStore) Save(_ context.Context, token domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.tokens[token.UserID] = token
	return nil
}

func (s *stubTokenStore) Load(_ context.Context, userID string) (*domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &token, nil
}

func (s *stubTokenStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
	return nil
}

type stubDeriver struct{}

func (stubDeriver) Derive(userID string, issuedAt int64, host string) string {
	return fmt.Sprintf("%s-%d-%s", userID, issuedAt, host)
}

type stubFetcher struct {
	mu         sync.Mutex
	responses  map[string]*domain.CachedAsset
	err        error
	fetchCalls []string
	pageCalls  []string
	lastToken  string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{responses: make(map[string]*domain.CachedAsset)}
}

func (s *stubFetcher) respond(url string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[url] = &domain.CachedAsset{URL: url, Status: status, Body: []byte(body)}
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (*domain.CachedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls = append(s.fetchCalls, url)
	if s.err != nil {
		return nil, s.err
	}
	if asset, ok := s.responses[url]; ok {
		copied := *asset
		return &copied, nil
	}
	return &domain.CachedAsset{URL: url, Status: 404}, nil
}

func (s *stubFetcher) FetchPage(_ context.Context, pageID, bearerToken string) (*domain.CachedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls = append(s.pageCalls, pageID)
	s.lastToken = bearerToken
	if s.err != nil {
		return nil, s.err
	}
	if asset, ok := s.responses[pageID]; ok {
		copied := *asset
		return &copied, nil
	}
	return &domain.CachedAsset{URL: pageID, Status: 200, Body: []byte("<html>" + pageID + "</html>")}, nil
}

type stubAssetCache struct {
	mu          sync.Mutex
	generations map[string]domain.CacheGeneration
	assets      map[string]map[string]domain.CachedAsset
	putErr      error
}

func newStubAssetCache() *stubAssetCache {
	return &stubAssetCache{
		generations: make(map[string]domain.CacheGeneration),
		assets:      make(map[string]map[string]domain.CachedAsset),
	}
}

func (s *stubAssetCache) SaveGeneration(_ context.Context, gen domain.CacheGeneration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[gen.Name] = gen
	return nil
}

func (s *stubAssetCache) ListGenerations(context.Context) ([]domain.CacheGeneration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CacheGeneration, 0, len(s.generations))
	for _, gen := range s.generations {
		out = append(out, gen)
	}
	return out, nil
}

func (s *stubAssetCache) ActiveGeneration(context.Context) (*domain.CacheGeneration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, gen := range s.generations {
		if gen.State == domain.GenerationActive {
			copied := gen
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubAssetCache) DeleteGeneration(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.generations, name)
	delete(s.assets, name)
	return nil
}

func (s *stubAssetCache) Get(_ context.Context, generation, url string) (*domain.CachedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if assets, ok := s.assets[generation]; ok {
		if asset, ok := assets[url]; ok {
			copied := asset
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubAssetCache) Put(_ context.Context, generation string, asset domain.CachedAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if _, ok := s.assets[generation]; !ok {
		s.assets[generation] = make(map[string]domain.CachedAsset)
	}
	s.assets[generation][asset.URL] = asset
	return nil
}

type stubPublisher struct {
	mu         sync.Mutex
	activated  []domain.CodeActivatedEvent
	bound      []domain.DeviceBoundEvent
	committed  []domain.SessionCommittedEvent
	promotions []domain.GenerationActivatedEvent
}

func (s *stubPublisher) PublishCodeActivated(_ context.Context, event domain.CodeActivatedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated = append(s.activated, event)
	return nil
}

func (s *stubPublisher) PublishDeviceBound(_ context.Context, event domain.DeviceBoundEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound = append(s.bound, event)
	return nil
}

func (s *stubPublisher) PublishSessionCommitted(_ context.Context, event domain.SessionCommittedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, event)
	return nil
}

func (s *stubPublisher) PublishGenerationActivated(_ context.Context, event domain.GenerationActivatedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotions = append(s.promotions, event)
	return nil
}
