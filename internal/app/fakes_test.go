package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/internal/store"
)

type fakeUserRepo struct {
	profiles  map[string]*domain.UserProfile
	linkCalls int
	linkErr   error
	updates   []domain.VerificationStateUpdate
	flagCalls int

	candidates    []domain.SyncCandidate
	candidatesErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{profiles: map[string]*domain.UserProfile{}}
}

func (f *fakeUserRepo) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	profile, ok := f.profiles[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *profile
	return &copied, nil
}

func (f *fakeUserRepo) FindUserIDByProviderCustomerID(ctx context.Context, providerCustomerID string) (string, error) {
	for id, profile := range f.profiles {
		if profile.ProviderCustomerID != nil && *profile.ProviderCustomerID == providerCustomerID {
			return id, nil
		}
	}
	return "", pgx.ErrNoRows
}

func (f *fakeUserRepo) LinkProviderCustomer(ctx context.Context, userID, providerCustomerID, agreementID string) error {
	f.linkCalls++
	if f.linkErr != nil {
		return f.linkErr
	}
	profile, ok := f.profiles[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	profile.ProviderCustomerID = &providerCustomerID
	if agreementID != "" {
		profile.ProviderAgreementID = &agreementID
	}
	return nil
}

func (f *fakeUserRepo) UpdateAgreementID(ctx context.Context, userID, agreementID string) error {
	profile, ok := f.profiles[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	profile.ProviderAgreementID = &agreementID
	return nil
}

func (f *fakeUserRepo) UpdateVerificationState(ctx context.Context, userID string, state domain.VerificationStateUpdate) error {
	f.updates = append(f.updates, state)
	profile, ok := f.profiles[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	profile.ExternalKYCStatus = state.Status
	profile.RejectionReasons = state.RejectionReasons
	return nil
}

func (f *fakeUserRepo) SetResourcesProvisioned(ctx context.Context, userID string, provisioned bool) error {
	f.flagCalls++
	profile, ok := f.profiles[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	profile.ResourcesProvisioned = provisioned
	return nil
}

func (f *fakeUserRepo) ListSyncCandidates(ctx context.Context, limit int) ([]domain.SyncCandidate, error) {
	if f.candidatesErr != nil {
		return nil, f.candidatesErr
	}
	if limit < len(f.candidates) {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

type fakeSubmissionRepo struct {
	byID   map[string]*domain.VerificationSubmission
	latest map[string]map[domain.SubmissionCategory]*domain.VerificationSubmission

	deleted []string
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		byID:   map[string]*domain.VerificationSubmission{},
		latest: map[string]map[domain.SubmissionCategory]*domain.VerificationSubmission{},
	}
}

func (f *fakeSubmissionRepo) put(sub *domain.VerificationSubmission) {
	if sub.ID == "" {
		sub.ID = fmt.Sprintf("sub_%d", len(f.byID)+1)
	}
	f.byID[sub.ID] = sub
	if f.latest[sub.UserID] == nil {
		f.latest[sub.UserID] = map[domain.SubmissionCategory]*domain.VerificationSubmission{}
	}
	f.latest[sub.UserID][sub.Category] = sub
}

func (f *fakeSubmissionRepo) CreateSubmission(ctx context.Context, sub *domain.VerificationSubmission) (string, error) {
	f.put(sub)
	return sub.ID, nil
}

func (f *fakeSubmissionRepo) GetSubmission(ctx context.Context, id string) (*domain.VerificationSubmission, error) {
	sub, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return sub, nil
}

func (f *fakeSubmissionRepo) LatestByUserAndCategory(ctx context.Context, userID string, category domain.SubmissionCategory) (*domain.VerificationSubmission, error) {
	sub, ok := f.latest[userID][category]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return sub, nil
}

func (f *fakeSubmissionRepo) ListByUser(ctx context.Context, userID string) ([]domain.VerificationSubmission, error) {
	var out []domain.VerificationSubmission
	for _, sub := range f.byID {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeSubmissionRepo) UpdateReview(ctx context.Context, id string, status domain.SubmissionStatus, reason *string) error {
	sub, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	sub.Status = status
	sub.RejectionReason = reason
	return nil
}

func (f *fakeSubmissionRepo) DeleteSubmission(ctx context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeResourceRepo struct {
	resources   map[string]*domain.ProvisionedResource
	createCalls int
	createErr   error
	countErr    error
}

func newFakeResourceRepo() *fakeResourceRepo {
	return &fakeResourceRepo{resources: map[string]*domain.ProvisionedResource{}}
}

func resourceKey(userID string, kind domain.ResourceKind, currency string) string {
	return fmt.Sprintf("%s/%s/%s", userID, kind, currency)
}

func (f *fakeResourceRepo) FindResource(ctx context.Context, userID string, kind domain.ResourceKind, currency string) (*domain.ProvisionedResource, error) {
	res, ok := f.resources[resourceKey(userID, kind, currency)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return res, nil
}

func (f *fakeResourceRepo) CreateResource(ctx context.Context, res *domain.ProvisionedResource) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	res.ID = fmt.Sprintf("res_%d", f.createCalls)
	f.resources[resourceKey(res.UserID, res.Kind, res.Currency)] = res
	return res.ID, nil
}

func (f *fakeResourceRepo) ListByUser(ctx context.Context, userID string) ([]domain.ProvisionedResource, error) {
	var out []domain.ProvisionedResource
	for _, res := range f.resources {
		if res.UserID == userID {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (f *fakeResourceRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, res := range f.resources {
		if res.UserID == userID {
			count++
		}
	}
	return count, nil
}

type fakeGateway struct {
	createCustomerCalls int
	createCustomerErr   error
	createdCustomerID   string

	getCustomerView *domain.CustomerView
	getCustomerErr  error

	walletCalls int
	walletErr   error
	vaCalls     int
	vaErr       error

	tosLink      *domain.TosLink
	tosLinkErr   error
	agreement    *domain.AgreementStatus
	agreementErr error

	attachedAgreements []string
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, req domain.CreateCustomerRequest, idempotencyKey string) (*domain.CustomerView, error) {
	f.createCustomerCalls++
	if f.createCustomerErr != nil {
		return nil, f.createCustomerErr
	}
	id := f.createdCustomerID
	if id == "" {
		id = "cus_123"
	}
	view := &domain.CustomerView{}
	view.Data.ID = id
	return view, nil
}

func (f *fakeGateway) GetCustomer(ctx context.Context, customerID string) (*domain.CustomerView, error) {
	if f.getCustomerErr != nil {
		return nil, f.getCustomerErr
	}
	if f.getCustomerView != nil {
		return f.getCustomerView, nil
	}
	view := &domain.CustomerView{}
	view.Data.ID = customerID
	return view, nil
}

func (f *fakeGateway) UpdateCustomerAgreement(ctx context.Context, customerID, agreementID string) error {
	f.attachedAgreements = append(f.attachedAgreements, agreementID)
	return nil
}

func (f *fakeGateway) CreateTosLink(ctx context.Context, req domain.CreateTosLinkRequest) (*domain.TosLink, error) {
	if f.tosLinkErr != nil {
		return nil, f.tosLinkErr
	}
	if f.tosLink != nil {
		return f.tosLink, nil
	}
	return &domain.TosLink{ID: "link_1", URL: "https://provider.example/tos/link_1"}, nil
}

func (f *fakeGateway) GetTosAcceptanceLink(ctx context.Context, customerID string) (*domain.TosLink, error) {
	if f.tosLinkErr != nil {
		return nil, f.tosLinkErr
	}
	return &domain.TosLink{ID: "link_scoped", URL: "https://provider.example/tos/" + customerID}, nil
}

func (f *fakeGateway) GetSignedAgreementStatus(ctx context.Context, linkID string) (*domain.AgreementStatus, error) {
	if f.agreementErr != nil {
		return nil, f.agreementErr
	}
	if f.agreement != nil {
		return f.agreement, nil
	}
	return &domain.AgreementStatus{LinkID: linkID}, nil
}

func (f *fakeGateway) CreateWallet(ctx context.Context, customerID, currency string) (*domain.ResourceResponse, error) {
	f.walletCalls++
	if f.walletErr != nil {
		return nil, f.walletErr
	}
	resp := &domain.ResourceResponse{}
	resp.Data.ID = fmt.Sprintf("wal_%s_%d", currency, f.walletCalls)
	return resp, nil
}

func (f *fakeGateway) CreateVirtualAccount(ctx context.Context, customerID, currency string) (*domain.ResourceResponse, error) {
	f.vaCalls++
	if f.vaErr != nil {
		return nil, f.vaErr
	}
	resp := &domain.ResourceResponse{}
	resp.Data.ID = fmt.Sprintf("va_%s_%d", currency, f.vaCalls)
	return resp, nil
}

type publishedEvent struct {
	exchange   string
	routingKey string
	payload    interface{}
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{exchange: exchange, routingKey: routingKey, payload: payload})
	return nil
}

func (f *fakePublisher) keys() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.routingKey)
	}
	return out
}

type fakeProvisioner struct {
	calls    int
	complete bool
	err      error
}

func (f *fakeProvisioner) Provision(ctx context.Context, userID, providerCustomerID string) (bool, error) {
	f.calls++
	return f.complete, f.err
}

type fakeCache struct {
	entries     map[string]*domain.CachedVerificationStatus
	invalidated []string
	setCalls    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*domain.CachedVerificationStatus{}}
}

func (f *fakeCache) Get(ctx context.Context, userID string) (*domain.CachedVerificationStatus, error) {
	status, ok := f.entries[userID]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	return status, nil
}

func (f *fakeCache) Set(ctx context.Context, userID string, status *domain.CachedVerificationStatus, ttl time.Duration) error {
	f.setCalls++
	f.entries[userID] = status
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, userID string) error {
	delete(f.entries, userID)
	f.invalidated = append(f.invalidated, userID)
	return nil
}

func approvedSubmission(userID string, category domain.SubmissionCategory) *domain.VerificationSubmission {
	sub := &domain.VerificationSubmission{
		UserID:      userID,
		Category:    category,
		Status:      domain.SubmissionApproved,
		Country:     "GB",
		DocumentRef: "doc-" + string(category),
	}
	switch category {
	case domain.CategoryIdentity:
		sub.FirstName = "Ada"
		sub.LastName = "Lovelace"
		sub.DateOfBirth = "1990-01-15"
		sub.IDDocumentType = "passport"
	case domain.CategoryAddress:
		sub.AddressText = "1 Example Street, London"
		sub.DocumentType = "utility_bill"
	}
	return sub
}

func profileWithoutCustomer(userID string) *domain.UserProfile {
	return &domain.UserProfile{
		ID:        userID,
		Email:     userID + "@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
}
