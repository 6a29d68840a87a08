package orm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mickamy/ormgraph/orm"
)

type account struct {
	ID          int64
	Email       string
	Version     int64
	ActivatedAt time.Time
	status      orm.Status
}

func (a *account) SetStatus(s orm.Status) { a.status = s }

func accountBinder(t *testing.T) *orm.Binder[account] {
	t.Helper()
	b, err := orm.NewBinder("Account", []orm.Field[account]{
		orm.Col("id", func(a *account) *int64 { return &a.ID }, orm.PrimaryKey()),
		orm.Col("email", func(a *account) *string { return &a.Email }),
		orm.Col("version", func(a *account) *int64 { return &a.Version }, orm.Token()),
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBinder_BindAll(t *testing.T) {
	t.Parallel()

	b := accountBinder(t)
	row := orm.RowOf(map[string]any{"id": int64(7), "email": []byte("a@example.com"), "version": int64(3), "extra": "x"})
	m, changed, err := b.Bind(context.Background(), row, orm.BindAll, nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if m.ID != 7 || m.Email != "a@example.com" || m.Version != 3 {
		t.Errorf("model = %+v", m)
	}
	if diff := cmp.Diff([]string{"id", "email", "version"}, changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}
}

func TestBinder_BindDifferences(t *testing.T) {
	t.Parallel()

	b := accountBinder(t)
	existing := &account{ID: 7, Email: "old@example.com", Version: 3}
	row := orm.RowOf(map[string]any{"id": int64(7), "email": "new@example.com"})

	m, changed, err := b.Bind(context.Background(), row, orm.BindDifferences, existing)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if m != existing {
		t.Error("Bind did not write onto the existing model")
	}
	if m.Version != 3 {
		t.Errorf("absent column overwritten: version = %d", m.Version)
	}
	if diff := cmp.Diff([]string{"email"}, changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}
}

func TestBinder_NoBindableField(t *testing.T) {
	t.Parallel()

	_, _, err := accountBinder(t).Bind(context.Background(), orm.RowOf(map[string]any{"other": 1}), orm.BindAll, nil)
	if !errors.Is(err, orm.ErrNoBindableField) {
		t.Errorf("err = %v, want ErrNoBindableField", err)
	}
}

func TestBinder_CreateKey(t *testing.T) {
	t.Parallel()

	b := accountBinder(t)
	k, err := b.CreateKey(orm.RowOf(map[string]any{"id": int64(7), "version": int64(2)}))
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if !k.Equal(orm.Key{Type: "Account", Values: []any{7}, Token: 2}, orm.CompareBoth) {
		t.Errorf("key = %s", k)
	}

	_, err = b.CreateKey(orm.RowOf(map[string]any{"email": "x"}))
	if !errors.Is(err, orm.ErrMissingKey) {
		t.Errorf("err = %v, want ErrMissingKey", err)
	}
}

func TestNewBinder_Invalid(t *testing.T) {
	t.Parallel()

	id := orm.Col("id", func(a *account) *int64 { return &a.ID })
	if _, err := orm.NewBinder("Account", []orm.Field[account]{id, id}); err == nil {
		t.Error("duplicate column accepted")
	}
	tokens := []orm.Field[account]{
		orm.Col("id", func(a *account) *int64 { return &a.ID }, orm.Token()),
		orm.Col("version", func(a *account) *int64 { return &a.Version }, orm.Token()),
	}
	if _, err := orm.NewBinder("Account", tokens); err == nil {
		t.Error("two concurrency tokens accepted")
	}
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestBinder_Status(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := orm.WithClock(context.Background(), fixedClock(at))
	b, err := orm.NewBinder("Account", []orm.Field[account]{
		orm.Col("id", func(a *account) *int64 { return &a.ID }, orm.PrimaryKey()),
		orm.Col("activated_at", func(a *account) *time.Time { return &a.ActivatedAt }),
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		row  map[string]any
		want orm.Status
	}{
		{"active", map[string]any{"id": 1, "activated_at": at.Add(-time.Hour)}, orm.StatusActive},
		{"pending", map[string]any{"id": 1, "activated_at": at.Add(time.Hour)}, orm.StatusPending},
		{"expired", map[string]any{"id": 1, "activated_at": at.Add(-time.Hour), "expired_at": "2024-05-31 00:00:00"}, orm.StatusExpired},
		{"no columns", map[string]any{"id": 1}, orm.StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _, err := b.Bind(ctx, orm.RowOf(tt.row), orm.BindAll, nil)
			if err != nil {
				t.Fatalf("Bind: %v", err)
			}
			if m.status != tt.want {
				t.Errorf("status = %s, want %s", m.status, tt.want)
			}
		})
	}
}
