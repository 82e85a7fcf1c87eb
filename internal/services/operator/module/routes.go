package module

import (
	stdhttp "net/http"
	"strconv"
	"time"

	perr "starchart/internal/platform/errors"
	"starchart/internal/platform/web"
	cdom "starchart/internal/services/catalog/domain"
	vsvc "starchart/internal/services/verifier/service"

	"github.com/go-chi/chi/v5"
)

// challengeView is the wire shape for challenge responses
type challengeView struct {
	Domain    string    `json:"domain"`
	Token     string    `json:"token,omitempty"`
	Record    string    `json:"record,omitempty"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

func viewOf(c cdom.Challenge) challengeView {
	v := challengeView{
		Domain:    c.Domain,
		Status:    string(c.Status),
		ExpiresAt: c.ExpiresAt,
	}
	// the token is only useful while the record still needs publishing
	if c.Status == cdom.ChallengePending || c.Status == cdom.ChallengeFailed {
		v.Token = c.Token
		v.Record = vsvc.RecordName(c.Domain)
	}
	return v
}

type issueReq struct {
	Hostname string `json:"hostname" validate:"required,hostname_rfc1123"`
}

type repoView struct {
	Forge       string   `json:"forge"`
	Name        string   `json:"name"`
	Owner       string   `json:"owner"`
	Description string   `json:"description,omitempty"`
	Website     string   `json:"website,omitempty"`
	HTMLURL     string   `json:"html_url,omitempty"`
	Topics      []string `json:"topics,omitempty"`
}

// MountRoutes attaches the operator API to r
func (m *Module) MountRoutes(r chi.Router) {
	r.Post("/challenges", web.Handle(m.issueChallenge))
	r.Get("/challenges/{domain}", web.Handle(m.getChallenge))
	r.Post("/challenges/{domain}/verify", web.Handle(m.verifyChallenge))

	r.Get("/catalog/search", web.Handle(m.searchCatalog))
	r.Get("/catalog/forges/{hostname}", web.Handle(m.getForge))
	r.Delete("/catalog/forges/{hostname}", web.Handle(m.deleteForge))
}

func (m *Module) issueChallenge(r *stdhttp.Request) web.Response {
	in, err := web.ParseJSON[issueReq](r)
	if err != nil {
		return web.Error(err)
	}
	c, err := m.verifier.Issue(r.Context(), in.Hostname)
	if err != nil {
		return web.Error(err)
	}
	return web.Created(viewOf(c))
}

func (m *Module) getChallenge(r *stdhttp.Request) web.Response {
	c, err := m.store.GetChallenge(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		return web.Error(err)
	}
	return web.OK(viewOf(c))
}

func (m *Module) verifyChallenge(r *stdhttp.Request) web.Response {
	c, err := m.verifier.Verify(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		return web.Error(err)
	}
	return web.OK(viewOf(c))
}

func (m *Module) searchCatalog(r *stdhttp.Request) web.Response {
	q := r.URL.Query().Get("q")
	if q == "" {
		return web.Error(perr.InvalidArgf("missing query parameter q"))
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			return web.Error(perr.InvalidArgf("limit must be between 1 and 500"))
		}
		limit = n
	}

	recs, err := m.store.SearchRepositories(r.Context(), q, limit)
	if err != nil {
		return web.Error(err)
	}
	out := make([]repoView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, repoView{
			Forge:       rec.ForgeHost,
			Name:        rec.Name,
			Owner:       rec.Owner,
			Description: rec.Description,
			Website:     rec.Website,
			HTMLURL:     rec.HTMLURL,
			Topics:      rec.Topics,
		})
	}
	return web.OK(out)
}

type forgeView struct {
	Hostname      string     `json:"hostname"`
	Kind          string     `json:"kind"`
	BaseURL       string     `json:"base_url"`
	AddedAt       time.Time  `json:"added_at"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
}

func (m *Module) getForge(r *stdhttp.Request) web.Response {
	f, err := m.store.GetForge(r.Context(), chi.URLParam(r, "hostname"))
	if err != nil {
		return web.Error(err)
	}
	return web.OK(forgeView{
		Hostname:      f.Hostname,
		Kind:          f.Kind,
		BaseURL:       f.BaseURL,
		AddedAt:       f.AddedAt,
		LastCrawledAt: f.LastCrawledAt,
	})
}

// deleteForge removes a forge and everything cataloged from it
// This is the non-participation path, so it is deliberately a hard delete
func (m *Module) deleteForge(r *stdhttp.Request) web.Response {
	if err := m.store.DeleteForge(r.Context(), chi.URLParam(r, "hostname")); err != nil {
		return web.Error(err)
	}
	return web.NoContent()
}
