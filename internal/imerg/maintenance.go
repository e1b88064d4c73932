package imerg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CatalogMaintainer refreshes catalog planner statistics after a run has
// churned rows. It is a no-op for catalogs without an Analyze hook.
type CatalogMaintainer struct {
	catalog Catalog
}

func NewCatalogMaintainer(catalog Catalog) *CatalogMaintainer {
	return &CatalogMaintainer{catalog: catalog}
}

func (m *CatalogMaintainer) Name() string { return "catalog-analyze" }

func (m *CatalogMaintainer) Maintain(ctx context.Context) error {
	analyzer, ok := m.catalog.(interface {
		Analyze(ctx context.Context) error
	})
	if !ok {
		return nil
	}
	return analyzer.Analyze(ctx)
}

// ServiceRefresher bounces a downstream map service through its admin REST
// API so the service picks up rasters added or evicted during the run. The
// admin API issues short-lived tokens, so every refresh fetches a fresh one.
type ServiceRefresher struct {
	adminBase   string
	username    string
	password    string
	folder      string
	service     string
	serviceType string
	client      *http.Client
	logger      Logger
}

type ServiceRefresherOptions struct {
	AdminBase   string
	Username    string
	Password    string
	Folder      string
	Service     string
	ServiceType string
	Client      *http.Client
	Logger      Logger
}

func NewServiceRefresher(opts ServiceRefresherOptions) (*ServiceRefresher, error) {
	if opts.AdminBase == "" {
		return nil, fmt.Errorf("admin base URL is required")
	}
	if opts.Service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	serviceType := opts.ServiceType
	if serviceType == "" {
		serviceType = "ImageServer"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &ServiceRefresher{
		adminBase:   strings.TrimRight(opts.AdminBase, "/"),
		username:    opts.Username,
		password:    opts.Password,
		folder:      opts.Folder,
		service:     opts.Service,
		serviceType: serviceType,
		client:      client,
		logger:      logger,
	}, nil
}

func (r *ServiceRefresher) Name() string {
	return "service-refresh " + r.servicePath()
}

// Maintain stops and restarts the service. A stop followed by a failed start
// is reported; the next run retries the full cycle.
func (r *ServiceRefresher) Maintain(ctx context.Context) error {
	token, err := r.generateToken(ctx)
	if err != nil {
		return fmt.Errorf("generate admin token: %w", err)
	}
	for _, action := range []string{"stop", "start"} {
		if err := r.serviceAction(ctx, token, action); err != nil {
			return fmt.Errorf("%s %s: %w", action, r.servicePath(), err)
		}
		r.logger.Printf("service %s %s issued", r.servicePath(), action)
	}
	return nil
}

func (r *ServiceRefresher) servicePath() string {
	name := r.service + "." + r.serviceType
	if r.folder != "" {
		return r.folder + "/" + name
	}
	return name
}

func (r *ServiceRefresher) generateToken(ctx context.Context) (string, error) {
	form := url.Values{
		"username": {r.username},
		"password": {r.password},
		"client":   {"requestip"},
		"f":        {"json"},
	}
	var reply struct {
		Token string `json:"token"`
	}
	if err := r.postForm(ctx, r.adminBase+"/generateToken", form, &reply); err != nil {
		return "", err
	}
	if reply.Token == "" {
		return "", fmt.Errorf("admin API returned no token")
	}
	return reply.Token, nil
}

func (r *ServiceRefresher) serviceAction(ctx context.Context, token, action string) error {
	form := url.Values{
		"token": {token},
		"f":     {"json"},
	}
	endpoint := r.adminBase + "/services/" + r.servicePath() + "/" + action
	var reply struct {
		Status string `json:"status"`
	}
	if err := r.postForm(ctx, endpoint, form, &reply); err != nil {
		return err
	}
	if reply.Status != "success" {
		return fmt.Errorf("admin API reported status %q", reply.Status)
	}
	return nil
}

func (r *ServiceRefresher) postForm(ctx context.Context, endpoint string, form url.Values, reply any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(reply)
}
