package services

import (
	"context"
	"testing"
	"time"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func newProtocolFixture() (*ProtocolService, *stubStore) {
	store := newStubStore()
	svc := NewProtocolService(store)
	svc.now = func() time.Time { return time.Unix(0, 0).UTC() }
	n := 0
	svc.idGen = func(size int) string {
		n++
		return string(rune('a'+n-1)) + "0000000000000"[:size-1]
	}
	return svc, store
}

func TestProtocolCreateDefaults(t *testing.T) {
	svc, _ := newProtocolFixture()
	ctx := context.Background()

	p, err := svc.Create(ctx, "A1", ProtocolInput{Title: strPtr(" Spring batch ")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if p.Title != "Spring batch" {
		t.Fatalf("Title = %q, want trimmed", p.Title)
	}
	if p.TestPeriodDays != DefaultTestPeriodDays {
		t.Fatalf("TestPeriodDays = %d, want %d", p.TestPeriodDays, DefaultTestPeriodDays)
	}
	if p.MaterialState != string(questionnaire.StateNewBag) {
		t.Fatalf("MaterialState = %q, want new_bag", p.MaterialState)
	}
	if len(p.ID) != 10 || len(p.ShareLink) != 12 {
		t.Fatalf("unexpected generated ids: %q %q", p.ID, p.ShareLink)
	}

	got, err := svc.GetByShareLink(ctx, p.ShareLink)
	if err != nil || got.ID != p.ID {
		t.Fatalf("GetByShareLink = %v, %v", got, err)
	}
}

func TestProtocolDefaultPeriodIsConfigurable(t *testing.T) {
	svc, _ := newProtocolFixture()
	svc.SetDefaultPeriod(28)
	svc.SetDefaultPeriod(0)
	p, err := svc.Create(context.Background(), "A1", ProtocolInput{Title: strPtr("Long run")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if p.TestPeriodDays != 28 {
		t.Fatalf("TestPeriodDays = %d, want 28", p.TestPeriodDays)
	}
}

func TestProtocolCreateValidation(t *testing.T) {
	svc, _ := newProtocolFixture()
	ctx := context.Background()

	cases := []struct {
		name string
		in   ProtocolInput
		code ErrorCode
	}{
		{"missing title", ProtocolInput{}, ErrorInvalid},
		{"period too long", ProtocolInput{Title: strPtr("t"), TestPeriodDays: intPtr(61)}, ErrorInvalid},
		{"period zero", ProtocolInput{Title: strPtr("t"), TestPeriodDays: intPtr(0)}, ErrorInvalid},
		{"bad link", ProtocolInput{Title: strPtr("t"), ShareLink: strPtr("a/b")}, ErrorInvalid},
		{"bad state", ProtocolInput{Title: strPtr("t"), MaterialState: strPtr("opened")}, ErrorInvalid},
	}
	for _, tc := range cases {
		_, err := svc.Create(ctx, "A1", tc.in)
		if se, ok := AsServiceError(err); !ok || se.Code != tc.code {
			t.Fatalf("%s: err = %v, want %s", tc.name, err, tc.code)
		}
	}
	if _, err := svc.Create(ctx, "", ProtocolInput{Title: strPtr("t")}); err == nil {
		t.Fatalf("expected error without admin")
	}
}

func TestProtocolShareLinkConflict(t *testing.T) {
	svc, _ := newProtocolFixture()
	ctx := context.Background()
	if _, err := svc.Create(ctx, "A1", ProtocolInput{Title: strPtr("one"), ShareLink: strPtr("spring")}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	_, err := svc.Create(ctx, "A1", ProtocolInput{Title: strPtr("two"), ShareLink: strPtr("spring")})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestProtocolUpdateRules(t *testing.T) {
	svc, store := newProtocolFixture()
	ctx := context.Background()
	p, err := svc.Create(ctx, "A1", ProtocolInput{Title: strPtr("one"), MaterialState: strPtr("normal")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.Update(ctx, "A2", p.ID, ProtocolInput{Title: strPtr("x")}); err == nil {
		t.Fatalf("expected forbidden for other admin")
	}
	_, err = svc.Update(ctx, "A1", p.ID, ProtocolInput{MaterialState: strPtr("new_bag")})
	if se, ok := AsServiceError(err); !ok || se.Field != "materialState" {
		t.Fatalf("err = %v, want materialState field error", err)
	}

	updated, err := svc.Update(ctx, "A1", p.ID, ProtocolInput{TestPeriodDays: intPtr(14), Description: strPtr("d")})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.TestPeriodDays != 14 || updated.Description != "d" || updated.Title != "one" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	store.progress[pkey("U1", p.ID)] = &questionnaire.Progress{UserID: "U1", ProtocolID: p.ID}
	_, err = svc.Update(ctx, "A1", p.ID, ProtocolInput{TestPeriodDays: intPtr(21)})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("err = %v, want conflict once participants joined", err)
	}
	if _, err := svc.Update(ctx, "A1", p.ID, ProtocolInput{TestPeriodDays: intPtr(14), Title: strPtr("renamed")}); err != nil {
		t.Fatalf("unchanged period should be allowed: %v", err)
	}
}

func TestProtocolListAndDelete(t *testing.T) {
	svc, _ := newProtocolFixture()
	ctx := context.Background()
	a, _ := svc.Create(ctx, "A1", ProtocolInput{Title: strPtr("a")})
	_, _ = svc.Create(ctx, "A2", ProtocolInput{Title: strPtr("b")})

	list, err := svc.List(ctx, "A1")
	if err != nil || len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("List = %v, %v", list, err)
	}
	if err := svc.Delete(ctx, "A2", a.ID); err == nil {
		t.Fatalf("expected forbidden delete")
	}
	if err := svc.Delete(ctx, "A1", a.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	_, err = svc.Get(ctx, "A1", a.ID)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}
