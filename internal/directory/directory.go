// Package directory finds users who can be invited or added as staff.
package directory

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/arenahq/orgcore/internal/apperrors"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
	maxTermLength   = 64

	// MaxPage keeps (page-1)*MaxPageSize inside an int32 offset.
	MaxPage = math.MaxInt32 / MaxPageSize
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Candidate is a user row returned by Search.
type Candidate struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	HasOrg      bool      `json:"has_org"`
}

// CandidatePage is one page of search results.
type CandidatePage struct {
	Candidates []Candidate `json:"candidates"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	HasMore    bool        `json:"has_more"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// Query is a search request. Cursor, when set, overrides Page.
//
// Users who already belong to an organization are excluded unless HasOrg
// says otherwise or IncludeMembers is set.
type Query struct {
	Term           string
	Page           int
	PageSize       int
	Cursor         string
	HasOrg         *bool
	IncludeMembers bool
}

// hasOrg resolves the membership filter handed to the backend. nil means
// no filter.
func (q Query) hasOrg() *bool {
	if q.HasOrg != nil {
		v := *q.HasOrg
		return &v
	}
	if q.IncludeMembers {
		return nil
	}
	unaffiliated := false
	return &unaffiliated
}

// Filter is what a Backend evaluates. Term is already normalized.
type Filter struct {
	Term   string
	HasOrg *bool
	Offset int
	Limit  int
}

// Backend returns candidates whose username or display name starts with
// Term, ordered by (username, user id).
type Backend interface {
	SearchCandidates(ctx context.Context, filter Filter) ([]Candidate, error)
}

type Service struct {
	backend Backend
}

func NewService(backend Backend) *Service {
	return &Service{backend: backend}
}

// NormalizeTerm trims and lower-cases a search term and caps it at
// maxTermLength bytes without splitting a rune. Invalid UTF-8 is replaced.
func NormalizeTerm(term string) string {
	term = strings.ToLower(strings.ToValidUTF8(strings.TrimSpace(term), ""))
	if len(term) <= maxTermLength {
		return term
	}
	cut := 0
	for cut < len(term) {
		_, size := utf8.DecodeRuneInString(term[cut:])
		if cut+size > maxTermLength {
			break
		}
		cut += size
	}
	return term[:cut]
}

// Search runs one page of a candidate search. An empty term yields an empty
// page without touching the backend.
func (s *Service) Search(ctx context.Context, q Query) (*CandidatePage, error) {
	const op = "directory.Search"

	page := q.Page
	if q.Cursor != "" {
		p, err := DecodeCursor(q.Cursor)
		if err != nil {
			return nil, &apperrors.Error{Kind: apperrors.KindInvalid, Op: op, Message: "invalid cursor", Err: err}
		}
		page = p
	}
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		return nil, apperrors.New(apperrors.KindInvalid, op, "page must be at most %d", MaxPage)
	}
	size := q.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	out := &CandidatePage{Candidates: []Candidate{}, Page: page, PageSize: size}
	term := NormalizeTerm(q.Term)
	if term == "" {
		return out, nil
	}

	rows, err := s.backend.SearchCandidates(ctx, Filter{
		Term:   term,
		HasOrg: q.hasOrg(),
		Offset: (page - 1) * size,
		Limit:  size + 1,
	})
	if err != nil {
		return nil, apperrors.Transient(op, err)
	}

	if len(rows) > size {
		out.HasMore = true
		out.NextCursor = EncodeCursor(page + 1)
		rows = rows[:size]
	}
	out.Candidates = append(out.Candidates, rows...)
	return out, nil
}

const cursorPrefix = "p:"

// EncodeCursor returns the opaque token for page.
func EncodeCursor(page int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(page)))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(cursor string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	s, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}
	page, err := strconv.Atoi(s)
	if err != nil || page < 1 || page > MaxPage {
		return 0, ErrInvalidCursor
	}
	return page, nil
}
