package linker

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strptr(s string) *string { return &s }

func notFound() error {
	return httperror.NewHTTPError(http.StatusNotFound, "not found")
}

type fakePeople struct {
	byIdentifier map[string]*models.Person
	byName       map[string][]models.Person
	leastLoaded  *models.Person
}

func (f *fakePeople) FindByIdentifier(ctx context.Context, workspaceID, identifier string) (*models.Person, error) {
	if p, ok := f.byIdentifier[identifier]; ok {
		return p, nil
	}
	return nil, notFound()
}

func (f *fakePeople) SearchByName(ctx context.Context, workspaceID, fragment string, limit int) ([]models.Person, error) {
	return f.byName[fragment], nil
}

func (f *fakePeople) LeastLoaded(ctx context.Context, workspaceID string) (*models.Person, error) {
	if f.leastLoaded == nil {
		return nil, notFound()
	}
	return f.leastLoaded, nil
}

type fakeOrgs struct {
	byDomain    map[string]*models.Organization
	byName      map[string][]models.Organization
	leastLoaded *models.Organization
}

func (f *fakeOrgs) FindByDomain(ctx context.Context, workspaceID, domain string) (*models.Organization, error) {
	if o, ok := f.byDomain[domain]; ok {
		return o, nil
	}
	return nil, notFound()
}

func (f *fakeOrgs) SearchByName(ctx context.Context, workspaceID, fragment string, limit int) ([]models.Organization, error) {
	return f.byName[fragment], nil
}

func (f *fakeOrgs) LeastLoaded(ctx context.Context, workspaceID string) (*models.Organization, error) {
	if f.leastLoaded == nil {
		return nil, notFound()
	}
	return f.leastLoaded, nil
}

type setOwnersCall struct {
	activityID     string
	personID       *string
	organizationID *string
	strategy       string
}

type fakeActivities struct {
	setCalls     []setOwnersCall
	recountCalls []string
}

func (f *fakeActivities) SetOwners(ctx context.Context, workspaceID, id string, personID, organizationID *string, strategy string) error {
	f.setCalls = append(f.setCalls, setOwnersCall{id, personID, organizationID, strategy})
	return nil
}

func (f *fakeActivities) RecountPerson(ctx context.Context, workspaceID, personID string) (int, error) {
	f.recountCalls = append(f.recountCalls, personID)
	return 1, nil
}

type fakeTx struct {
	committed bool
}

func (t *fakeTx) IsOpen() bool { return !t.committed }
func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }
func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (db *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (db *fakeDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (db *fakeDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (db *fakeDB) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}
func (db *fakeDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, nil
}
func (db *fakeDB) PingContext(ctx context.Context) error { return nil }
func (db *fakeDB) Close() error                          { return nil }
func (db *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	db.tx = &fakeTx{}
	return ctx, db.tx, nil
}

func newTestLinker(people *fakePeople, orgs *fakeOrgs, activities *fakeActivities) (*Linker, *fakeDB) {
	if people == nil {
		people = &fakePeople{}
	}
	if orgs == nil {
		orgs = &fakeOrgs{}
	}
	if activities == nil {
		activities = &fakeActivities{}
	}
	db := &fakeDB{}
	return NewLinker(db, people, orgs, activities, getTestLogger()), db
}

func orphan(id, activityType, content string) *models.Activity {
	return &models.Activity{ID: id, WorkspaceID: "ws-1", Type: activityType, Content: content}
}

func TestResolve_ExactIdentifier(t *testing.T) {
	person := &models.Person{ID: "person-1", WorkspaceID: "ws-1", OrganizationID: strptr("org-1")}
	people := &fakePeople{byIdentifier: map[string]*models.Person{"john.doe@acme.com": person}}
	l, _ := newTestLinker(people, nil, nil)

	activity := orphan("act-1", models.ActivityTypeCall, "Call with john.doe@acme.com about renewal pricing")
	resolution, err := l.Resolve(context.Background(), activity)
	require.NoError(t, err)
	require.NotNil(t, resolution)

	assert.Equal(t, "act-1", resolution.ActivityID)
	require.NotNil(t, resolution.PersonID)
	assert.Equal(t, "person-1", *resolution.PersonID)
	require.NotNil(t, resolution.OrganizationID, "person's organization is adopted")
	assert.Equal(t, "org-1", *resolution.OrganizationID)
	assert.Equal(t, StrategyExactIdentifier, resolution.Strategy)
	assert.False(t, resolution.LowConfidence)
}

func TestResolve_DomainDerived(t *testing.T) {
	orgs := &fakeOrgs{byDomain: map[string]*models.Organization{
		"acme.com": {ID: "org-1", WorkspaceID: "ws-1", Name: "Acme Inc"},
	}}
	l, _ := newTestLinker(nil, orgs, nil)

	// no person carries the identifier, but its domain names a known org
	activity := orphan("act-2", models.ActivityTypeEmail, "Follow up with jane@acme.com next week")
	resolution, err := l.Resolve(context.Background(), activity)
	require.NoError(t, err)
	require.NotNil(t, resolution)

	assert.Nil(t, resolution.PersonID)
	require.NotNil(t, resolution.OrganizationID)
	assert.Equal(t, "org-1", *resolution.OrganizationID)
	assert.Equal(t, StrategyDomainDerived, resolution.Strategy)
	assert.False(t, resolution.LowConfidence)
}

func TestResolve_FreeMailDomainSkipped(t *testing.T) {
	orgs := &fakeOrgs{byDomain: map[string]*models.Organization{
		"gmail.com": {ID: "org-bad", WorkspaceID: "ws-1"},
	}}
	l, _ := newTestLinker(nil, orgs, nil)

	activity := orphan("act-3", models.ActivityTypeEmail, "Ping bob@gmail.com")
	resolution, err := l.Resolve(context.Background(), activity)
	require.NoError(t, err)
	assert.Nil(t, resolution, "free mail providers never identify an organization")
}

func TestResolve_NameMatchRequiresUniqueHit(t *testing.T) {
	t.Run("unique match wins", func(t *testing.T) {
		person := models.Person{ID: "person-2", WorkspaceID: "ws-1", FullName: "Mary Major"}
		people := &fakePeople{byName: map[string][]models.Person{"Mary Major": {person}}}
		l, _ := newTestLinker(people, nil, nil)

		activity := orphan("act-4", models.ActivityTypeNote, "Spoke with Mary Major about the contract")
		resolution, err := l.Resolve(context.Background(), activity)
		require.NoError(t, err)
		require.NotNil(t, resolution)
		assert.Equal(t, StrategyName, resolution.Strategy)
		assert.Equal(t, "person-2", *resolution.PersonID)
	})

	t.Run("ambiguous match falls through", func(t *testing.T) {
		people := &fakePeople{
			byName: map[string][]models.Person{
				"Mary Major": {{ID: "person-2"}, {ID: "person-3"}},
			},
			leastLoaded: &models.Person{ID: "person-idle"},
		}
		l, _ := newTestLinker(people, nil, nil)

		// unknown type tag keeps type inference neutral, so nothing below
		// the name strategy can match either
		activity := orphan("act-5", "custom", "Spoke with Mary Major about the contract")
		resolution, err := l.Resolve(context.Background(), activity)
		require.NoError(t, err)
		require.NotNil(t, resolution)
		assert.Equal(t, StrategyFallbackDistribution, resolution.Strategy, "two hits is ambiguous")

		// and with no people at all the activity stays unresolved
		l2, _ := newTestLinker(&fakePeople{byName: people.byName}, nil, nil)
		resolution, err = l2.Resolve(context.Background(), activity)
		require.NoError(t, err)
		assert.Nil(t, resolution)
	})
}

func TestResolve_OrganizationToken(t *testing.T) {
	orgs := &fakeOrgs{byName: map[string][]models.Organization{
		"Globex Corp": {{ID: "org-2", WorkspaceID: "ws-1", Name: "Globex Corp"}},
	}}
	l, _ := newTestLinker(nil, orgs, nil)

	activity := orphan("act-6", "custom", "invoice from Globex Corp arrived")
	resolution, err := l.Resolve(context.Background(), activity)
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, StrategyOrganizationToken, resolution.Strategy)
	assert.Equal(t, "org-2", *resolution.OrganizationID)
	assert.Nil(t, resolution.PersonID)
}

func TestResolve_TypeInference(t *testing.T) {
	person := &models.Person{ID: "person-4", WorkspaceID: "ws-1", OrganizationID: strptr("org-3")}
	org := &models.Organization{ID: "org-4", WorkspaceID: "ws-1"}

	tests := []struct {
		name         string
		activityType string
		wantPerson   *string
		wantOrg      *string
	}{
		{"email goes to least loaded person", models.ActivityTypeEmail, strptr("person-4"), strptr("org-3")},
		{"call goes to least loaded person", models.ActivityTypeCall, strptr("person-4"), strptr("org-3")},
		{"meeting goes to least loaded person", models.ActivityTypeMeeting, strptr("person-4"), strptr("org-3")},
		{"note goes to least loaded organization", models.ActivityTypeNote, nil, strptr("org-4")},
		{"task goes to least loaded organization", models.ActivityTypeTask, nil, strptr("org-4")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newTestLinker(&fakePeople{leastLoaded: person}, &fakeOrgs{leastLoaded: org}, nil)

			activity := orphan("act-7", tc.activityType, "no identifiers or names here")
			resolution, err := l.Resolve(context.Background(), activity)
			require.NoError(t, err)
			require.NotNil(t, resolution)

			assert.Equal(t, StrategyTypeInference, resolution.Strategy)
			assert.True(t, resolution.LowConfidence)
			assert.Equal(t, tc.wantPerson, resolution.PersonID)
			assert.Equal(t, tc.wantOrg, resolution.OrganizationID)
		})
	}

	t.Run("unknown type is neutral", func(t *testing.T) {
		// only the fallback can catch it, and with no people it misses too
		l, _ := newTestLinker(&fakePeople{}, &fakeOrgs{leastLoaded: org}, nil)

		activity := orphan("act-8", "custom", "no identifiers or names here")
		resolution, err := l.Resolve(context.Background(), activity)
		require.NoError(t, err)
		assert.Nil(t, resolution)
	})
}

func TestResolve_FallbackDistribution(t *testing.T) {
	person := &models.Person{ID: "person-5", WorkspaceID: "ws-1"}
	l, _ := newTestLinker(&fakePeople{leastLoaded: person}, nil, nil)

	activity := orphan("act-9", "custom", "nothing extractable at all")
	resolution, err := l.Resolve(context.Background(), activity)
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, StrategyFallbackDistribution, resolution.Strategy)
	assert.True(t, resolution.LowConfidence)
	assert.Equal(t, "person-5", *resolution.PersonID)
	assert.Nil(t, resolution.OrganizationID)
}

func TestResolve_StrategyOrder(t *testing.T) {
	// every strategy could match; the exact identifier must win
	person := &models.Person{ID: "person-6", WorkspaceID: "ws-1", OrganizationID: strptr("org-5")}
	people := &fakePeople{
		byIdentifier: map[string]*models.Person{"john.doe@acme.com": person},
		byName:       map[string][]models.Person{"John Doe": {{ID: "person-other"}}},
		leastLoaded:  &models.Person{ID: "person-idle"},
	}
	orgs := &fakeOrgs{
		byDomain:    map[string]*models.Organization{"acme.com": {ID: "org-domain"}},
		leastLoaded: &models.Organization{ID: "org-idle"},
	}
	l, _ := newTestLinker(people, orgs, nil)

	activity := orphan("act-10", models.ActivityTypeEmail, "talked with John Doe at john.doe@acme.com")
	resolution, err := l.Resolve(context.Background(), activity)
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, StrategyExactIdentifier, resolution.Strategy)
	assert.Equal(t, "person-6", *resolution.PersonID)
}

func TestResolve_RejectsNonOrphans(t *testing.T) {
	l, _ := newTestLinker(nil, nil, nil)

	tests := []struct {
		name     string
		activity *models.Activity
	}{
		{"nil activity", nil},
		{"missing id", &models.Activity{WorkspaceID: "ws-1"}},
		{"already owned", &models.Activity{ID: "act-11", WorkspaceID: "ws-1", PersonID: strptr("person-1")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Resolve(context.Background(), tc.activity)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
		})
	}
}

func TestLink_PersistsOwnersAndRecounts(t *testing.T) {
	person := &models.Person{ID: "person-1", WorkspaceID: "ws-1", OrganizationID: strptr("org-1")}
	people := &fakePeople{byIdentifier: map[string]*models.Person{"john.doe@acme.com": person}}
	activities := &fakeActivities{}
	l, db := newTestLinker(people, nil, activities)

	activity := orphan("act-1", models.ActivityTypeCall, "Call with john.doe@acme.com")
	resolution, err := l.Link(context.Background(), activity)
	require.NoError(t, err)
	require.NotNil(t, resolution)

	require.Len(t, activities.setCalls, 1)
	call := activities.setCalls[0]
	assert.Equal(t, "act-1", call.activityID)
	assert.Equal(t, "person-1", *call.personID)
	assert.Equal(t, "org-1", *call.organizationID)
	assert.Equal(t, StrategyExactIdentifier, call.strategy)

	assert.Equal(t, []string{"person-1"}, activities.recountCalls)
	assert.True(t, db.tx.committed)
}

func TestLink_UnresolvedWritesNothing(t *testing.T) {
	activities := &fakeActivities{}
	l, db := newTestLinker(nil, nil, activities)

	activity := orphan("act-12", "custom", "nothing extractable")
	resolution, err := l.Link(context.Background(), activity)
	require.NoError(t, err)
	assert.Nil(t, resolution)
	assert.Empty(t, activities.setCalls)
	assert.Nil(t, db.tx, "no transaction should be opened")
}

func TestLink_OrganizationOnlySkipsRecount(t *testing.T) {
	orgs := &fakeOrgs{byDomain: map[string]*models.Organization{
		"acme.com": {ID: "org-1", WorkspaceID: "ws-1"},
	}}
	activities := &fakeActivities{}
	l, _ := newTestLinker(nil, orgs, activities)

	activity := orphan("act-13", models.ActivityTypeEmail, "Follow up with jane@acme.com")
	resolution, err := l.Link(context.Background(), activity)
	require.NoError(t, err)
	require.NotNil(t, resolution)

	require.Len(t, activities.setCalls, 1)
	assert.Nil(t, activities.setCalls[0].personID)
	assert.Empty(t, activities.recountCalls)
}
