// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// -- PageDriver Mock --

// MockPageDriver mocks schemas.PageDriver for executor and supervisor tests.
type MockPageDriver struct {
	mock.Mock
}

var _ schemas.PageDriver = (*MockPageDriver)(nil)

func (m *MockPageDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPageDriver) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPageDriver) ClickAt(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockPageDriver) Fill(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPageDriver) TypeKeys(ctx context.Context, selector, text string) error {
	return m.Called(ctx, selector, text).Error(0)
}

func (m *MockPageDriver) SetValueJS(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPageDriver) SetChecked(ctx context.Context, selector string, checked bool) error {
	return m.Called(ctx, selector, checked).Error(0)
}

func (m *MockPageDriver) SelectOption(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPageDriver) Hover(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPageDriver) Press(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockPageDriver) Scroll(ctx context.Context, direction string, amountPx int) error {
	return m.Called(ctx, direction, amountPx).Error(0)
}

func (m *MockPageDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return m.Called(ctx, selector, timeout).Error(0)
}

func (m *MockPageDriver) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPageDriver) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPageDriver) ViewportSize(ctx context.Context) (int64, int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockPageDriver) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPageDriver) PageSummary(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// -- OracleClient Mock --

// MockOracleClient mocks the reasoning oracle boundary.
type MockOracleClient struct {
	mock.Mock
}

var _ schemas.OracleClient = (*MockOracleClient)(nil)

func (m *MockOracleClient) Decide(ctx context.Context, req schemas.DecisionRequest) (schemas.Decision, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.Decision), args.Error(1)
}

// -- SequenceRepository Mock --

// MockSequenceRepository mocks the validated-sequence store.
type MockSequenceRepository struct {
	mock.Mock
}

var _ schemas.SequenceRepository = (*MockSequenceRepository)(nil)

func (m *MockSequenceRepository) SaveValidatedSequence(ctx context.Context, seq schemas.ValidatedSequence) error {
	return m.Called(ctx, seq).Error(0)
}

func (m *MockSequenceRepository) GetSequence(ctx context.Context, id string) (schemas.ValidatedSequence, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(schemas.ValidatedSequence), args.Error(1)
}

func (m *MockSequenceRepository) FindSimilar(ctx context.Context, description string, limit int) ([]schemas.ValidatedSequence, error) {
	args := m.Called(ctx, description, limit)
	if seqs, ok := args.Get(0).([]schemas.ValidatedSequence); ok {
		return seqs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSequenceRepository) ListSequences(ctx context.Context) ([]schemas.ValidatedSequence, error) {
	args := m.Called(ctx)
	if seqs, ok := args.Get(0).([]schemas.ValidatedSequence); ok {
		return seqs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSequenceRepository) DeleteSequence(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// -- SessionRepository Mock --

// MockSessionRepository mocks the session store.
type MockSessionRepository struct {
	mock.Mock
}

var _ schemas.SessionRepository = (*MockSessionRepository)(nil)

func (m *MockSessionRepository) CreateSession(ctx context.Context, ownerID string) (schemas.Session, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(schemas.Session), args.Error(1)
}

func (m *MockSessionRepository) GetSession(ctx context.Context, id string) (schemas.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(schemas.Session), args.Error(1)
}

func (m *MockSessionRepository) TouchSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionRepository) AppendSessionEvent(ctx context.Context, id string, ev schemas.SessionEvent) error {
	return m.Called(ctx, id, ev).Error(0)
}

func (m *MockSessionRepository) EndSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
