package gitea

import (
	"context"
	"net/url"
	"strconv"

	"starchart/internal/forge"
	perr "starchart/internal/platform/errors"
)

// ListRepositories returns one page of the instance-wide repository listing
// Gitea paginates with 1-based page numbers; the cursor encodes the next page
func (c *Client) ListRepositories(ctx context.Context, q forge.ListQuery) (forge.Page, error) {
	return c.searchPage(ctx, "", q.Cursor, q.PerPage)
}

// SearchRepositories returns one page of a keyword search, same contract as listing
func (c *Client) SearchRepositories(ctx context.Context, q forge.SearchQuery) (forge.Page, error) {
	return c.searchPage(ctx, q.Query, q.Cursor, q.PerPage)
}

func (c *Client) searchPage(ctx context.Context, keyword string, cursor forge.Cursor, perPage int) (forge.Page, error) {
	page, err := pageOf(cursor)
	if err != nil {
		return forge.Page{}, err
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(perPage))
	if keyword != "" {
		v.Set("q", keyword)
	}

	b, err := c.get(ctx, "/repos/search", v)
	if err != nil {
		return forge.Page{}, err
	}
	res, err := decode[searchResult](b)
	if err != nil {
		return forge.Page{}, err
	}
	if !res.OK {
		return forge.Page{}, perr.Unavailablef("gitea search reported not ok")
	}

	out := forge.Page{Repos: make([]forge.Repo, 0, len(res.Data))}
	for _, d := range res.Data {
		out.Repos = append(out.Repos, forge.Repo{
			ID:          d.ID,
			Name:        d.Name,
			Owner:       d.Owner.Login,
			Description: d.Description,
			Website:     d.Website,
			Topics:      d.Topics,
			Private:     d.Private,
			HTMLURL:     d.HTMLURL,
			UpdatedAt:   d.UpdatedAt,
		})
	}
	// a short page means the listing is exhausted
	if len(res.Data) == perPage {
		out.Next = forge.Cursor(strconv.Itoa(page + 1))
	}
	return out, nil
}

// GetUser fetches one user or organization by login name
func (c *Client) GetUser(ctx context.Context, username string) (forge.User, error) {
	if username == "" {
		return forge.User{}, perr.InvalidArgf("empty username")
	}
	b, err := c.get(ctx, "/users/"+url.PathEscape(username), nil)
	if err != nil {
		return forge.User{}, err
	}
	d, err := decode[userDoc](b)
	if err != nil {
		return forge.User{}, err
	}
	return forge.User{
		ID:        d.ID,
		Username:  d.Login,
		FullName:  d.FullName,
		AvatarURL: d.AvatarURL,
		HTMLURL:   d.HTMLURL,
	}, nil
}

// pageOf decodes a cursor back into a 1-based page number
func pageOf(c forge.Cursor) (int, error) {
	if c == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(string(c))
	if err != nil || n < 1 {
		return 0, perr.InvalidArgf("malformed cursor %q", c)
	}
	return n, nil
}
