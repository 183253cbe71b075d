package attribution

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/tenant"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) FindCandidates(ctx context.Context, q tenant.Query) model.TenantMatchResult {
	args := m.Called(ctx, q)
	return args.Get(0).(model.TenantMatchResult)
}

// fakeDirectory records writes and returns canned answers.
type fakeDirectory struct {
	mu sync.Mutex

	bankAccounts  map[string]bool
	tenants       map[string]*model.TenantContext
	owned         *model.TenantContext
	createErrs    []error
	transferErr   error
	membershipErr error

	created     []model.NewTenant
	memberships [][3]string
	identifiers []string
	transfers   [][2]string
	saved       map[string][]model.TenantCandidate
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		bankAccounts: map[string]bool{},
		tenants:      map[string]*model.TenantContext{},
		saved:        map[string][]model.TenantCandidate{},
	}
}

func (f *fakeDirectory) HasBankAccount(_ context.Context, tenantID, acct string) (bool, error) {
	return f.bankAccounts[tenantID+"/"+acct], nil
}

func (f *fakeDirectory) GetTenant(_ context.Context, id string) (*model.TenantContext, error) {
	return f.tenants[id], nil
}

func (f *fakeDirectory) FindOwnedTenantByName(context.Context, string, string) (*model.TenantContext, error) {
	return f.owned, nil
}

func (f *fakeDirectory) CreateTenant(_ context.Context, t model.NewTenant) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, t)
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "t-new", nil
}

func (f *fakeDirectory) AddMembership(_ context.Context, tenantID, userID, role string) error {
	f.memberships = append(f.memberships, [3]string{tenantID, userID, role})
	return f.membershipErr
}

func (f *fakeDirectory) AddIdentifier(_ context.Context, tenantID string, typ model.IdentifierType, value string) error {
	f.identifiers = append(f.identifiers, tenantID+"/"+string(typ)+"/"+value)
	return nil
}

func (f *fakeDirectory) TransferDocument(_ context.Context, docID, target string) error {
	f.transfers = append(f.transfers, [2]string{docID, target})
	return f.transferErr
}

func (f *fakeDirectory) SaveCandidates(_ context.Context, docID string, c []model.TenantCandidate) error {
	f.saved[docID] = c
	return nil
}

type fakeLocker struct {
	keys     []string
	released int
	err      error
}

func (l *fakeLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	return func() { l.released++ }, nil
}

var acme = model.TenantContext{ID: "t-acme", Name: "Acme Inc", OwnerID: "u-owner", Currency: "USD", Locale: "en-US"}

func boolPtr(b bool) *bool { return &b }

func mismatchedInvoice() *model.ExtractedDocument {
	return &model.ExtractedDocument{
		DocumentType: model.DocumentTypeInvoice,
		VendorName:   "Globex Supplies",
		CustomerName: "Initech LLC",
	}
}

func input(doc *model.ExtractedDocument, policy model.MismatchPolicy) Input {
	return Input{
		Document:            doc,
		DocumentID:          "doc-1",
		Tenant:              acme,
		Policy:              policy,
		Actor:               model.Actor{UserID: "u-owner"},
		AccessibleTenantIDs: []string{"t-acme", "t-init"},
	}
}

func TestAttribute_CustomerFuzzyMatchBelongs(t *testing.T) {
	finder := &mockFinder{}
	e := NewEngine(Config{}, finder, newFakeDirectory(), nil)

	out := e.Attribute(context.Background(), input(&model.ExtractedDocument{
		DocumentType: model.DocumentTypeInvoice,
		VendorName:   "Other Corp",
		CustomerName: "Acme Incorporated",
	}, model.DefaultMismatchPolicy()))

	assert.True(t, out.BelongsToTenant)
	assert.False(t, out.Investigated)
	assert.False(t, out.FlagWrongTenant)
	assert.Equal(t, acme, out.Tenant)
	finder.AssertNotCalled(t, "FindCandidates", mock.Anything, mock.Anything)
}

func TestAttribute_BankStatementWithoutHolderIsLenient(t *testing.T) {
	e := NewEngine(Config{}, &mockFinder{}, newFakeDirectory(), nil)

	out := e.Attribute(context.Background(), input(&model.ExtractedDocument{
		DocumentType:  model.DocumentTypeBankStatement,
		AccountNumber: "999-888",
	}, model.DefaultMismatchPolicy()))

	assert.True(t, out.BelongsToTenant)
	assert.False(t, out.FlagWrongTenant)
}

func TestAttribute_BankStatementKnownAccount(t *testing.T) {
	dir := newFakeDirectory()
	dir.bankAccounts["t-acme/123-456"] = true
	e := NewEngine(Config{}, &mockFinder{}, dir, nil)

	out := e.Attribute(context.Background(), input(&model.ExtractedDocument{
		DocumentType:      model.DocumentTypeBankStatement,
		AccountHolderName: "J. Smith",
		AccountNumber:     "123-456",
	}, model.DefaultMismatchPolicy()))

	assert.True(t, out.BelongsToTenant)
}

func TestAttribute_BankStatementForeignHolderInvestigated(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(model.TenantMatchResult{})
	dir := newFakeDirectory()
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(&model.ExtractedDocument{
		DocumentType:      model.DocumentTypeBankStatement,
		AccountHolderName: "Initech LLC",
	}, model.DefaultMismatchPolicy()))

	assert.False(t, out.BelongsToTenant)
	assert.True(t, out.Investigated)
	assert.True(t, out.FlagWrongTenant)
	assert.Equal(t, model.CorrectionNone, out.Correction.ActionTaken)
}

func TestAttribute_ExplicitTrueNeedsCorroboration(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(model.TenantMatchResult{})
	e := NewEngine(Config{}, finder, newFakeDirectory(), nil)

	doc := mismatchedInvoice()
	doc.IsBelongsToTenant = boolPtr(true)
	doc.ConfidenceScore = 0.5
	out := e.Attribute(context.Background(), input(doc, model.DefaultMismatchPolicy()))
	assert.False(t, out.BelongsToTenant)

	doc.ConfidenceScore = 0.85
	out = e.Attribute(context.Background(), input(doc, model.DefaultMismatchPolicy()))
	assert.True(t, out.BelongsToTenant)
}

func TestAttribute_ExplicitFalseNeedsEvidence(t *testing.T) {
	e := NewEngine(Config{ConfidenceThreshold: 0.9}, &mockFinder{}, newFakeDirectory(), nil)

	doc := &model.ExtractedDocument{
		DocumentType:      model.DocumentTypeInvoice,
		CustomerName:      "Acme Inc",
		ConfidenceScore:   0.95,
		IsBelongsToTenant: boolPtr(false),
	}
	// Confident enough to be trusted even though the name matches.
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(model.TenantMatchResult{})
	e.matcher = finder
	out := e.Attribute(context.Background(), input(doc, model.DefaultMismatchPolicy()))
	assert.False(t, out.BelongsToTenant)

	// Low confidence and the name matches: the hint is ignored.
	doc.ConfidenceScore = 0.3
	out = e.Attribute(context.Background(), input(doc, model.DefaultMismatchPolicy()))
	assert.True(t, out.BelongsToTenant)
}

func TestAttribute_ReceiptVendorOnlyNotInvestigated(t *testing.T) {
	finder := &mockFinder{}
	e := NewEngine(Config{}, finder, newFakeDirectory(), nil)

	out := e.Attribute(context.Background(), input(&model.ExtractedDocument{
		DocumentType: model.DocumentTypeReceipt,
		VendorName:   "Corner Cafe",
	}, model.DefaultMismatchPolicy()))

	assert.False(t, out.BelongsToTenant)
	assert.False(t, out.Investigated)
	assert.False(t, out.FlagWrongTenant)
	finder.AssertNotCalled(t, "FindCandidates", mock.Anything, mock.Anything)
}

func TestShouldInvestigate(t *testing.T) {
	tests := []struct {
		name string
		doc  model.ExtractedDocument
		want bool
	}{
		{"receipt explicit no", model.ExtractedDocument{DocumentType: model.DocumentTypeReceipt, IsBelongsToTenant: boolPtr(false)}, true},
		{"receipt foreign customer", model.ExtractedDocument{DocumentType: model.DocumentTypeReceipt, CustomerName: "Initech"}, true},
		{"receipt vendor only", model.ExtractedDocument{DocumentType: model.DocumentTypeReceipt, VendorName: "Cafe"}, false},
		{"invoice vendor", model.ExtractedDocument{DocumentType: model.DocumentTypeInvoice, VendorName: "Globex"}, true},
		{"invoice unnamed", model.ExtractedDocument{DocumentType: model.DocumentTypeInvoice}, false},
		{"credit note customer", model.ExtractedDocument{DocumentType: model.DocumentTypeCreditNote, CustomerName: "X Co"}, true},
		{"bank statement", model.ExtractedDocument{DocumentType: model.DocumentTypeBankStatement}, true},
		{"other without hint", model.ExtractedDocument{DocumentType: model.DocumentTypeOther, VendorName: "Globex"}, false},
		{"other explicit no", model.ExtractedDocument{DocumentType: model.DocumentTypeOther, IsBelongsToTenant: boolPtr(false)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldInvestigate(&tt.doc, gather(&tt.doc, acme)))
		})
	}
}

func initechMatch(conf float64) model.TenantMatchResult {
	return model.TenantMatchResult{
		Candidates:          []model.TenantCandidate{{TenantID: "t-init", TenantName: "Initech LLC", Confidence: conf, Reasons: []string{"Tax ID matches"}}},
		SuggestedTenantName: "Initech LLC",
	}
}

func TestAttribute_PolicyGatingKeepsNone(t *testing.T) {
	for _, conf := range []float64{0.5, 0.95, 1.0} {
		finder := &mockFinder{}
		finder.On("FindCandidates", mock.Anything, mock.Anything).Return(initechMatch(conf))
		dir := newFakeDirectory()
		e := NewEngine(Config{}, finder, dir, nil)

		out := e.Attribute(context.Background(), input(mismatchedInvoice(), model.MismatchPolicy{
			AllowAutoReassignment: false,
			MinConfidence:         0.1,
		}))

		assert.Equal(t, model.CorrectionNone, out.Correction.ActionTaken)
		assert.True(t, out.FlagWrongTenant)
		assert.Empty(t, dir.transfers)
		assert.Len(t, dir.saved["doc-1"], 1)
	}
}

func TestAttribute_MatcherQueryScopedToActor(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.MatchedBy(func(q tenant.Query) bool {
		return q.CurrentTenant.ID == "t-acme" && len(q.AccessibleTenantIDs) == 2
	})).Return(model.TenantMatchResult{})
	e := NewEngine(Config{}, finder, newFakeDirectory(), nil)

	e.Attribute(context.Background(), input(mismatchedInvoice(), model.DefaultMismatchPolicy()))
	finder.AssertExpectations(t)
}

func TestAttribute_Reassign(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(initechMatch(0.95))
	dir := newFakeDirectory()
	dir.tenants["t-init"] = &model.TenantContext{ID: "t-init", Name: "Initech LLC", Currency: "EUR"}
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), model.MismatchPolicy{AllowAutoReassignment: true, MinConfidence: 0.9}))

	require.NotNil(t, out.Correction)
	assert.Equal(t, model.CorrectionReassigned, out.Correction.ActionTaken)
	assert.Equal(t, "t-init", out.Correction.ToTenantID)
	assert.Equal(t, "t-acme", out.Correction.FromTenantID)
	assert.False(t, out.FlagWrongTenant)
	assert.True(t, out.Corrected())
	assert.Equal(t, "EUR", out.Tenant.Currency)
	assert.Equal(t, [][2]string{{"doc-1", "t-init"}}, dir.transfers)
	assert.Empty(t, dir.saved)
}

func TestAttribute_ReassignBelowMinConfidence(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(initechMatch(0.78))
	dir := newFakeDirectory()
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), model.MismatchPolicy{AllowAutoReassignment: true, MinConfidence: 0.9}))
	assert.Equal(t, model.CorrectionNone, out.Correction.ActionTaken)
	assert.Empty(t, dir.transfers)
}

func TestAttribute_ReassignTransferFails(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(initechMatch(0.95))
	dir := newFakeDirectory()
	dir.transferErr = errors.New("target tenant not accessible")
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), model.MismatchPolicy{AllowAutoReassignment: true, MinConfidence: 0.9}))
	assert.Equal(t, model.CorrectionFailed, out.Correction.ActionTaken)
	assert.Contains(t, out.Correction.Message, "target tenant not accessible")
	assert.True(t, out.FlagWrongTenant)
	assert.Equal(t, acme, out.Tenant)
}

func TestAttribute_MultiTenantSkipped(t *testing.T) {
	m := initechMatch(0.95)
	m.IsMultiTenant = true
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(m)
	dir := newFakeDirectory()
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), model.MismatchPolicy{
		AllowAutoReassignment: true, AllowAutoTenantCreation: true, MinConfidence: 0.5,
	}))
	assert.Equal(t, model.CorrectionSkippedMultiTenant, out.Correction.ActionTaken)
	assert.True(t, out.FlagWrongTenant)
	assert.Empty(t, dir.transfers)
}

func creationPolicy() model.MismatchPolicy {
	return model.MismatchPolicy{AllowAutoTenantCreation: true, MinConfidence: 0.9}
}

func newCompanyMatch() model.TenantMatchResult {
	return model.TenantMatchResult{SuggestedTenantName: "Initech LLC"}
}

func TestAttribute_CreateTenant(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(newCompanyMatch())
	dir := newFakeDirectory()
	locker := &fakeLocker{}
	e := NewEngine(Config{}, finder, dir, locker)

	in := input(mismatchedInvoice(), creationPolicy())
	in.Actor = model.Actor{UserID: "u-staff"}
	out := e.Attribute(context.Background(), in)

	require.NotNil(t, out.Correction)
	assert.Equal(t, model.CorrectionCreated, out.Correction.ActionTaken)
	assert.Equal(t, "t-new", out.Correction.ToTenantID)
	assert.False(t, out.FlagWrongTenant)
	require.Len(t, dir.created, 1)
	assert.Equal(t, "initech-llc", dir.created[0].Slug)
	assert.Equal(t, "u-owner", dir.created[0].OwnerID)
	assert.Equal(t, "USD", dir.created[0].Currency)
	assert.Equal(t, [][3]string{
		{"t-new", "u-owner", model.RoleOwner},
		{"t-new", "u-staff", model.RoleAdmin},
	}, dir.memberships)
	assert.Equal(t, []string{"t-new/NAME_ALIAS/Initech LLC"}, dir.identifiers)
	assert.Equal(t, [][2]string{{"doc-1", "t-new"}}, dir.transfers)
	assert.Equal(t, "t-new", out.Tenant.ID)
	assert.Equal(t, []string{"tenant:u-owner:initech llc"}, locker.keys)
	assert.Equal(t, 1, locker.released)
}

func TestAttribute_CreateOwnerIsActorSingleMembership(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(newCompanyMatch())
	dir := newFakeDirectory()
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), creationPolicy()))
	assert.Equal(t, model.CorrectionCreated, out.Correction.ActionTaken)
	assert.Len(t, dir.memberships, 1)
}

func TestAttribute_CreateSlugRetry(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(newCompanyMatch())
	dir := newFakeDirectory()
	dir.createErrs = []error{tenant.ErrSlugTaken, tenant.ErrSlugTaken, nil}
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), creationPolicy()))
	assert.Equal(t, model.CorrectionCreated, out.Correction.ActionTaken)
	require.Len(t, dir.created, 3)
	assert.Equal(t, "initech-llc", dir.created[0].Slug)
	assert.Regexp(t, regexp.MustCompile(`^initech-llc-[0-9a-f]{6}$`), dir.created[1].Slug)
	assert.NotEqual(t, dir.created[1].Slug, dir.created[2].Slug)
}

func TestAttribute_CreateSlugRetriesExhausted(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(newCompanyMatch())
	dir := newFakeDirectory()
	dir.createErrs = []error{tenant.ErrSlugTaken, tenant.ErrSlugTaken, tenant.ErrSlugTaken, tenant.ErrSlugTaken, nil}
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), creationPolicy()))
	assert.Equal(t, model.CorrectionFailed, out.Correction.ActionTaken)
	assert.Len(t, dir.created, 1+slugRetries)
	assert.True(t, out.FlagWrongTenant)
}

func TestAttribute_CreateLimitReached(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(newCompanyMatch())
	dir := newFakeDirectory()
	dir.createErrs = []error{errors.New("tenant: create: Tenant limit reached for your plan")}
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), creationPolicy()))
	assert.Equal(t, model.CorrectionLimitReached, out.Correction.ActionTaken)
	assert.True(t, out.FlagWrongTenant)
	assert.Empty(t, dir.transfers)
}

func TestAttribute_CreateMembershipFails(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(newCompanyMatch())
	dir := newFakeDirectory()
	dir.membershipErr = errors.New("fk violation")
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), creationPolicy()))
	assert.Equal(t, model.CorrectionFailed, out.Correction.ActionTaken)
	assert.Empty(t, dir.transfers)
}

func TestAttribute_ReusesOwnedTenant(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(newCompanyMatch())
	dir := newFakeDirectory()
	dir.owned = &model.TenantContext{ID: "t-init", Name: "Initech LLC"}
	e := NewEngine(Config{}, finder, dir, nil)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), creationPolicy()))
	assert.Equal(t, model.CorrectionReassigned, out.Correction.ActionTaken)
	assert.Equal(t, "t-init", out.Correction.ToTenantID)
	assert.Contains(t, out.Correction.Message, "Reused existing tenant")
	assert.Empty(t, dir.created)
}

func TestAttribute_CreateRequiresActor(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(newCompanyMatch())
	dir := newFakeDirectory()
	e := NewEngine(Config{}, finder, dir, nil)

	in := input(mismatchedInvoice(), creationPolicy())
	in.Actor = model.Actor{}
	out := e.Attribute(context.Background(), in)
	assert.Equal(t, model.CorrectionNone, out.Correction.ActionTaken)
	assert.Empty(t, dir.created)
}

func TestAttribute_LockFailureStillCreates(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindCandidates", mock.Anything, mock.Anything).Return(newCompanyMatch())
	dir := newFakeDirectory()
	locker := &fakeLocker{err: errors.New("lock: not obtained")}
	e := NewEngine(Config{}, finder, dir, locker)

	out := e.Attribute(context.Background(), input(mismatchedInvoice(), creationPolicy()))
	assert.Equal(t, model.CorrectionCreated, out.Correction.ActionTaken)
	assert.Equal(t, 0, locker.released)
}

func TestNewEngine_DefaultThreshold(t *testing.T) {
	e := NewEngine(Config{ConfidenceThreshold: 7}, nil, nil, nil)
	assert.Equal(t, DefaultConfidenceThreshold, e.cfg.ConfidenceThreshold)
}

func TestIsLimitError(t *testing.T) {
	assert.True(t, isLimitError(errors.New("Plan limit exceeded")))
	assert.True(t, isLimitError(errors.New("maximum number of tenants")))
	assert.False(t, isLimitError(errors.New("connection reset")))
}
