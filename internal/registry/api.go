package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	derrors "git.home.luguber.info/inful/pkgdocs/internal/errors"
	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
	"git.home.luguber.info/inful/pkgdocs/internal/model"
	"git.home.luguber.info/inful/pkgdocs/internal/retry"
	"git.home.luguber.info/inful/pkgdocs/internal/version"
)

// API queries the registry's web API.
type API struct {
	base   string
	client *http.Client
	policy retry.Policy
}

// NewAPI returns a client for the registry at baseURL.
func NewAPI(baseURL string, client *http.Client, policy retry.Policy) *API {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{base: strings.TrimRight(baseURL, "/"), client: client, policy: policy}
}

// GetReleaseData returns the publication metadata of one version.
func (a *API) GetReleaseData(ctx context.Context, name, ver string) (model.ReleaseData, error) {
	var resp struct {
		Versions []struct {
			Num       string    `json:"num"`
			CreatedAt time.Time `json:"created_at"`
			Yanked    bool      `json:"yanked"`
			Downloads int64     `json:"downloads"`
		} `json:"versions"`
	}
	if err := a.get(ctx, "/api/v1/crates/"+url.PathEscape(name)+"/versions", &resp); err != nil {
		return model.ReleaseData{}, err
	}
	for _, v := range resp.Versions {
		if v.Num == ver {
			return model.ReleaseData{ReleaseTime: v.CreatedAt, Yanked: v.Yanked, Downloads: v.Downloads}, nil
		}
	}
	return model.ReleaseData{}, derrors.RegistryError(a.base, fmt.Errorf("version %s of %s not found", ver, name))
}

// GetPackageData returns the name-level metadata of a package and its owners.
func (a *API) GetPackageData(ctx context.Context, name string) (model.PackageData, error) {
	var pkg struct {
		Crate struct {
			Description string `json:"description"`
			Downloads   int64  `json:"downloads"`
		} `json:"crate"`
	}
	if err := a.get(ctx, "/api/v1/crates/"+url.PathEscape(name), &pkg); err != nil {
		return model.PackageData{}, err
	}
	var owners struct {
		Users []struct {
			Login  string `json:"login"`
			Name   string `json:"name"`
			Avatar string `json:"avatar"`
		} `json:"users"`
	}
	if err := a.get(ctx, "/api/v1/crates/"+url.PathEscape(name)+"/owners", &owners); err != nil {
		return model.PackageData{}, err
	}

	data := model.PackageData{Description: pkg.Crate.Description, Downloads: pkg.Crate.Downloads}
	for _, u := range owners.Users {
		data.Owners = append(data.Owners, model.Owner{Login: u.Login, Name: u.Name, Avatar: u.Avatar})
	}
	return data, nil
}

func (a *API) get(ctx context.Context, path string, out any) error {
	endpoint := a.base + path
	return a.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return derrors.RegistryError(endpoint, err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.Tag())

		resp, err := a.client.Do(req)
		if err != nil {
			return derrors.NetworkTimeout(endpoint, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			slog.Debug("Registry API unavailable", logfields.URL(endpoint), slog.Int("status", resp.StatusCode))
			return derrors.WrapRetryable(fmt.Errorf("status %s", resp.Status), derrors.CategoryRegistry, derrors.SeverityError, endpoint)
		case resp.StatusCode != http.StatusOK:
			return derrors.RegistryError(endpoint, fmt.Errorf("status %s", resp.Status))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return derrors.RegistryError(endpoint, fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}
