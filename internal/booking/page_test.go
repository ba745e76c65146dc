package booking

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/therapy-booking/internal/analytics"
	perrors "github.com/p-blackswan/therapy-booking/internal/errors"
	"github.com/p-blackswan/therapy-booking/internal/i18n"
	"github.com/p-blackswan/therapy-booking/internal/metrics"
	"github.com/p-blackswan/therapy-booking/internal/models"
	"github.com/p-blackswan/therapy-booking/internal/partneraccess"
	"github.com/p-blackswan/therapy-booking/internal/requestid"
	"github.com/p-blackswan/therapy-booking/internal/widget"
	"github.com/p-blackswan/therapy-booking/pkg/tokenstore"
)

type loggedEvent struct {
	name analytics.EventName
	data map[string]interface{}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (f *fakeEvents) Log(_ context.Context, name analytics.EventName, data map[string]interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, loggedEvent{name: name, data: data})
	return true
}

func (f *fakeEvents) names() []analytics.EventName {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []analytics.EventName
	for _, e := range f.events {
		out = append(out, e.name)
	}
	return out
}

type fixture struct {
	svc      *Service
	events   *fakeEvents
	sessions *widget.Sessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := i18n.LoadEmbedded("en")
	require.NoError(t, err)

	events := &fakeEvents{}
	sessions := widget.NewSessions(tokenstore.NewMemoryStore(), time.Minute)
	svc := NewService(
		catalog,
		partneraccess.NewSelector(100, 0),
		events,
		sessions,
		widget.DefaultSettings("bloomtherapy", "minimal"),
		metrics.New(),
		zerolog.Nop(),
	)
	return &fixture{svc: svc, events: events, sessions: sessions}
}

func testUser() *models.User {
	return &models.User{ID: "user-1", Name: "Sam", Email: "sam@example.com", CreatedAt: time.Now().AddDate(0, 0, -3)}
}

func therapyAccess(name string, remaining, redeemed int) *partneraccess.PartnerAccess {
	pa := &partneraccess.PartnerAccess{
		FeatureTherapy:           true,
		TherapySessionsRemaining: remaining,
		TherapySessionsRedeemed:  redeemed,
	}
	if name != "" {
		pa.Partner = &partneraccess.Partner{Name: name}
	}
	return pa
}

func segment(rt i18n.RichText, tag string) (i18n.Segment, bool) {
	for _, s := range rt {
		if s.Tag == tag {
			return s, true
		}
	}
	return i18n.Segment{}, false
}

func TestBookSession_WithRemainingSessions(t *testing.T) {
	f := newFixture(t)
	req := Request{
		User:     testUser(),
		Accesses: []*partneraccess.PartnerAccess{therapyAccess("Acme", 3, 1)},
		Version:  1,
	}

	page, err := f.svc.BookSession(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "en", page.Locale)
	assert.Equal(t, "Therapy", page.HeadTitle)
	assert.True(t, page.HasRemaining)
	assert.True(t, page.ShowBookingButton)
	assert.Equal(t, "Book a session", page.BookingButton)
	assert.Contains(t, page.Header.Introduction.String(), "offered through Acme")
	assert.Equal(t, "/illustration_person4_peach.svg", page.Header.ImageSrc)
	assert.Equal(t, "Person sitting down with a cup of tea", page.Header.ImageAlt)
	require.NotNil(t, page.Partner)
	assert.Equal(t, "Acme", page.Partner.Name)
	assert.Nil(t, page.PartnerHeader)

	strong, ok := segment(page.CTA, "strongText")
	require.True(t, ok)
	assert.Equal(t, "3", strong.Text)
	assert.Equal(t, "You have 3 therapy sessions remaining.", page.CTA.String())

	assert.False(t, page.Widget.Open)
	assert.Equal(t, []analytics.EventName{analytics.TherapyBookingViewed}, f.events.names())
}

func TestBookSession_NoRemainingFallsBackToRedeemed(t *testing.T) {
	f := newFixture(t)
	req := Request{
		User: testUser(),
		Accesses: []*partneraccess.PartnerAccess{
			therapyAccess("First", 0, 1),
			therapyAccess("Last", 0, 2),
		},
		Version: 1,
	}

	page, err := f.svc.BookSession(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, page.HasRemaining)
	assert.False(t, page.ShowBookingButton)
	require.NotNil(t, page.Partner)
	assert.Equal(t, "Last", page.Partner.Name)

	strong, ok := segment(page.CTA, "strongText")
	require.True(t, ok)
	assert.Equal(t, "Last", strong.Text)
	assert.Contains(t, page.CTA.String(), "You have no therapy sessions remaining.")
}

func TestBookSession_NoSelectionUsesOrganisationFallback(t *testing.T) {
	f := newFixture(t)

	page, err := f.svc.BookSession(context.Background(), Request{User: testUser()})
	require.NoError(t, err)

	assert.Nil(t, page.Partner)
	assert.False(t, page.ShowBookingButton)
	assert.Contains(t, page.Header.Introduction.String(), "your organisation")
	for _, faq := range page.FAQs {
		assert.NotContains(t, faq.Body, "{partnerName}")
	}
}

func TestBookSession_UnnamedRemainingShowsButtonWithoutCount(t *testing.T) {
	f := newFixture(t)
	req := Request{
		User:     testUser(),
		Accesses: []*partneraccess.PartnerAccess{therapyAccess("", 4, 0)},
		Version:  1,
	}

	page, err := f.svc.BookSession(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, page.ShowBookingButton)
	assert.Nil(t, page.Partner)
	strong, ok := segment(page.CTA, "strongText")
	require.True(t, ok)
	assert.Empty(t, strong.Text)
}

func TestBookSession_StepsAndFAQs(t *testing.T) {
	f := newFixture(t)
	req := Request{User: testUser(), Accesses: []*partneraccess.PartnerAccess{therapyAccess("Acme", 1, 0)}, Version: 1}

	page, err := f.svc.BookSession(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, page.Steps.Items, 4)
	assert.Equal(t, "Choose a therapist who fits what you need.", page.Steps.Items[0].Text)
	assert.Equal(t, "/illustration_choose_therapist.svg", page.Steps.Items[0].IllustrationSrc)
	assert.Equal(t, "Person choosing a therapist from a list", page.Steps.Items[0].IllustrationAlt)
	assert.Equal(t, "/illustration_confidential.svg", page.Steps.Items[3].IllustrationSrc)

	assert.Equal(t, "Frequently asked questions", page.FAQHeader)
	assert.Equal(t, Image{Src: "/illustration_leaf_mix.svg", Alt: "Leaves", Width: 125, Height: 100}, page.FAQImage)

	require.Len(t, page.FAQs, 5)
	assert.Equal(t, "Who are the therapists?", page.FAQs[0].Title)
	assert.Contains(t, page.FAQs[1].Body, "paid for by Acme")
}

func TestBookSession_PartnerHeaderWhenLogo(t *testing.T) {
	f := newFixture(t)
	pa := therapyAccess("Acme", 1, 0)
	pa.Partner.Logo = "https://cdn.example.com/acme.png"

	page, err := f.svc.BookSession(context.Background(), Request{User: testUser(), Accesses: []*partneraccess.PartnerAccess{pa}, Version: 1})
	require.NoError(t, err)

	require.NotNil(t, page.PartnerHeader)
	assert.Equal(t, "https://cdn.example.com/acme.png", page.PartnerHeader.PartnerLogoSrc)
	assert.Equal(t, "Acme logo", page.PartnerHeader.PartnerLogoAlt)
}

func TestBookSession_LocaleOverride(t *testing.T) {
	f := newFixture(t)
	user := testUser()
	user.Locale = "en"
	req := Request{User: user, Accesses: []*partneraccess.PartnerAccess{therapyAccess("Acme", 1, 0)}, Version: 1, Locale: "es-MX"}

	page, err := f.svc.BookSession(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "es", page.Locale)
	assert.NotEqual(t, "Therapy", page.HeadTitle)
	require.Len(t, page.FAQs, 5)
	// Untranslated FAQs fall back to English.
	assert.Equal(t, "What if I need to cancel?", page.FAQs[3].Title)
}

func TestBookSession_WidgetStaysOpenAfterOpen(t *testing.T) {
	f := newFixture(t)
	req := Request{User: testUser(), Accesses: []*partneraccess.PartnerAccess{therapyAccess("Acme", 2, 0)}, Version: 1}

	_, err := f.svc.OpenWidget(context.Background(), req)
	require.NoError(t, err)

	page, err := f.svc.BookSession(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, page.Widget.Open)
	assert.Equal(t, widget.ScriptID, page.Widget.ScriptID)
	require.NotNil(t, page.Widget.Config)
	assert.Equal(t, "sam@example.com", page.Widget.Config.AppConfig.Predefined.Client.Email)
}

func TestCloseWidget(t *testing.T) {
	f := newFixture(t)
	req := Request{User: testUser(), Accesses: []*partneraccess.PartnerAccess{therapyAccess("Acme", 2, 0)}, Version: 1}

	_, err := f.svc.OpenWidget(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, f.svc.CloseWidget(context.Background(), req.User.ID))

	page, err := f.svc.BookSession(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, page.Widget.Open)

	require.NoError(t, f.svc.CloseWidget(context.Background(), "never-opened"))
}

func TestOpenWidget(t *testing.T) {
	f := newFixture(t)
	req := Request{User: testUser(), Accesses: []*partneraccess.PartnerAccess{therapyAccess("Acme", 2, 0)}, Version: 1}
	ctx := requestid.WithRequestID(context.Background(), "req-7")

	launch, err := f.svc.OpenWidget(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "widget-js", launch.ScriptID)
	assert.Equal(t, "//widget.simplybook.it/v2/widget/widget.js", launch.ScriptSrc)
	assert.Equal(t, "https://bloomtherapy.simplybook.it", launch.Config.URL)
	assert.Equal(t, "Sam", launch.Config.AppConfig.Predefined.Client.Name)
	assert.Equal(t, []analytics.EventName{analytics.TherapyBookingOpened}, f.events.names())

	open, err := f.sessions.IsOpen(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, open)
}

func TestOpenWidget_NoSessionsRemaining(t *testing.T) {
	f := newFixture(t)
	req := Request{User: testUser(), Accesses: []*partneraccess.PartnerAccess{therapyAccess("Acme", 0, 3)}, Version: 1}

	launch, err := f.svc.OpenWidget(context.Background(), req)
	assert.Nil(t, launch)
	assert.ErrorIs(t, err, perrors.ErrNoSessionsRemaining)
	assert.Empty(t, f.events.names())
}

func TestResolve_UsesSelectorCache(t *testing.T) {
	f := newFixture(t)
	accesses := []*partneraccess.PartnerAccess{therapyAccess("Acme", 1, 0)}

	f.svc.Resolve(Request{User: testUser(), Accesses: accesses, Version: 1})
	f.svc.Resolve(Request{User: testUser(), Accesses: accesses, Version: 1})

	stats := f.svc.selector.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, testutil.ToFloat64(f.svc.metrics.SelectorHitRatio), 0.001)
}

func TestBuildFAQs_SkipsMissingEntries(t *testing.T) {
	catalog, err := i18n.Load(fstest.MapFS{
		"en/therapy.yaml": {Data: []byte(`
Therapy:
  faqs:
    who:
      title: Who are the therapists?
      body: Chosen with {partnerName}.
    privacy:
      title: Is it private?
      body: "Yes."
`)},
	}, "en")
	require.NoError(t, err)

	faqs := buildFAQs(catalog.Translator("en", "Therapy.faqs"), "Acme")
	require.Len(t, faqs, 2)
	assert.Equal(t, "Who are the therapists?", faqs[0].Title)
	assert.Equal(t, "Chosen with Acme.", faqs[0].Body)
	assert.Equal(t, "Is it private?", faqs[1].Title)
}
