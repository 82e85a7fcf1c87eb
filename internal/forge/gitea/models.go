package gitea

import "time"

// repoDoc is a partial Gitea repository document with fields we use
type repoDoc struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	Website     string    `json:"website"`
	Private     bool      `json:"private"`
	HTMLURL     string    `json:"html_url"`
	Topics      []string  `json:"topics"`
	UpdatedAt   time.Time `json:"updated_at"`
	Owner       userDoc   `json:"owner"`
}

// userDoc is a partial Gitea user or organization document
type userDoc struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
	Website   string `json:"website"`
}

// searchResult is the envelope Gitea wraps repo search results in
type searchResult struct {
	OK   bool      `json:"ok"`
	Data []repoDoc `json:"data"`
}
