package linker

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/clover/pkg/extractor"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Strategy names, recorded as the link_strategy tag on resolved activities.
const (
	StrategyExactIdentifier      = "exact-identifier"
	StrategyDomainDerived        = "domain-derived"
	StrategyName                 = "name"
	StrategyOrganizationToken    = "organization-token"
	StrategyTypeInference        = "type-inference"
	StrategyFallbackDistribution = "fallback-distribution"
)

// owners is a candidate owner assignment produced by a strategy. A nil
// result with nil error means the strategy did not match.
type owners struct {
	personID       *string
	organizationID *string
	lowConfidence  bool
}

type strategy struct {
	name string
	fn   func(ctx context.Context, workspaceID string, activity *models.Activity) (*owners, error)
}

// isMiss treats a directory 404 as a strategy miss rather than an error,
// so the chain falls through to the next strategy.
func isMiss(err error) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}

// exactIdentifier extracts identifier-shaped substrings from the activity
// text and looks up a person by any identifier field. A match also adopts
// the person's organization.
func (l *Linker) exactIdentifier(ctx context.Context, workspaceID string, activity *models.Activity) (*owners, error) {
	for _, identifier := range extractor.Identifiers(activity.SearchableText()) {
		person, err := l.people.FindByIdentifier(ctx, workspaceID, identifier)
		if err != nil {
			if isMiss(err) {
				continue
			}
			return nil, err
		}
		return &owners{personID: &person.ID, organizationID: person.OrganizationID}, nil
	}
	return nil, nil
}

// domainDerived matches the domain portion of an extracted identifier
// against organization domain/website fields. Free mail providers are
// skipped; gmail.com never identifies an organization.
func (l *Linker) domainDerived(ctx context.Context, workspaceID string, activity *models.Activity) (*owners, error) {
	for _, identifier := range extractor.Identifiers(activity.SearchableText()) {
		domain := extractor.Domain(identifier)
		if domain == "" || !extractor.IsOrganizationDomain(domain) {
			continue
		}
		org, err := l.organizations.FindByDomain(ctx, workspaceID, domain)
		if err != nil {
			if isMiss(err) {
				continue
			}
			return nil, err
		}
		return &owners{organizationID: &org.ID}, nil
	}
	return nil, nil
}

// nameMatch extracts capitalized multi-word sequences and searches people
// by name. Only an unambiguous hit counts; several people matching the
// same fragment falls through to a lower-confidence strategy.
func (l *Linker) nameMatch(ctx context.Context, workspaceID string, activity *models.Activity) (*owners, error) {
	for _, name := range extractor.Names(activity.SearchableText()) {
		matches, err := l.people.SearchByName(ctx, workspaceID, name, 2)
		if err != nil {
			if isMiss(err) {
				continue
			}
			return nil, err
		}
		if len(matches) != 1 {
			continue
		}
		person := matches[0]
		return &owners{personID: &person.ID, organizationID: person.OrganizationID}, nil
	}
	return nil, nil
}

// organizationToken detects legal-suffix tokens with their adjacent words
// as a candidate organization name and searches by substring. Same
// uniqueness requirement as nameMatch.
func (l *Linker) organizationToken(ctx context.Context, workspaceID string, activity *models.Activity) (*owners, error) {
	for _, phrase := range extractor.OrganizationTokens(activity.SearchableText()) {
		matches, err := l.organizations.SearchByName(ctx, workspaceID, phrase, 2)
		if err != nil {
			if isMiss(err) {
				continue
			}
			return nil, err
		}
		if len(matches) != 1 {
			continue
		}
		return &owners{organizationID: &matches[0].ID}, nil
	}
	return nil, nil
}

// typeInference assigns by the record's type tag: person-centric types go
// to the least-loaded person, organization-centric types to the
// least-loaded organization. Unknown tags are neutral and miss. Always
// low confidence.
func (l *Linker) typeInference(ctx context.Context, workspaceID string, activity *models.Activity) (*owners, error) {
	switch {
	case activity.PersonCentric():
		person, err := l.people.LeastLoaded(ctx, workspaceID)
		if err != nil {
			if isMiss(err) {
				return nil, nil
			}
			return nil, err
		}
		return &owners{personID: &person.ID, organizationID: person.OrganizationID, lowConfidence: true}, nil
	case activity.Type == models.ActivityTypeNote, activity.Type == models.ActivityTypeTask:
		org, err := l.organizations.LeastLoaded(ctx, workspaceID)
		if err != nil {
			if isMiss(err) {
				return nil, nil
			}
			return nil, err
		}
		return &owners{organizationID: &org.ID, lowConfidence: true}, nil
	}
	return nil, nil
}

// fallbackDistribution assigns to the least-loaded person as a last
// resort. Always low confidence.
func (l *Linker) fallbackDistribution(ctx context.Context, workspaceID string, _ *models.Activity) (*owners, error) {
	person, err := l.people.LeastLoaded(ctx, workspaceID)
	if err != nil {
		if isMiss(err) {
			return nil, nil
		}
		return nil, err
	}
	return &owners{personID: &person.ID, organizationID: person.OrganizationID, lowConfidence: true}, nil
}
