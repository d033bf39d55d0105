package job

import (
	"context"
	"strconv"
	"strings"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"github.com/GoCodeAlone/kiejob/transport"
	"github.com/tidwall/gjson"
)

// CreditsProbe reports the account balance.
type CreditsProbe struct {
	http      *transport.Client
	endpoints Endpoints
	log       *logger.Logger
}

// NewCreditsProbe creates a CreditsProbe.
func NewCreditsProbe(http *transport.Client, endpoints Endpoints, log *logger.Logger) *CreditsProbe {
	return &CreditsProbe{http: http, endpoints: endpoints, log: log.OrNop()}
}

// Fetch queries the credit endpoint for the remaining balance.
func (c *CreditsProbe) Fetch(ctx context.Context, token string) (int64, error) {
	resp, err := c.http.Get(ctx, opCredits, c.endpoints.Credit, token, nil, requestTimeout)
	if err != nil {
		return 0, err
	}
	if err := resp.Transient(); err != nil {
		return 0, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return 0, failure.Fatalf(opCredits, "Remaining credits endpoint did not return valid JSON.")
	}

	res := gjson.ParseBytes(resp.Body)
	if code := res.Get("code"); code.Raw != "200" {
		return 0, failure.Fatalf(opCredits, "Remaining credits endpoint returned error code %s: %s", code.Raw, res.Get("msg").String())
	}

	data := res.Get("data")
	switch data.Type {
	case gjson.Number:
		return int64(data.Num), nil
	case gjson.String:
		if n, err := strconv.ParseInt(strings.TrimSpace(data.Str), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, failure.Fatalf(opCredits, "Remaining credits value is not an integer.")
}

// LogRemaining logs the balance after a job. It prefers remainedCredits
// from rec and falls back to Fetch. Failures are logged, never returned.
func (c *CreditsProbe) LogRemaining(ctx context.Context, token string, rec *Record) {
	if rec != nil && rec.RemainedCredits != nil {
		c.log.Infow("remaining credits", "credits", rec.RemainedCredits.String())
		return
	}
	n, err := c.Fetch(ctx, token)
	if err != nil {
		c.log.Warnw("failed to fetch remaining credits", "error", err)
		return
	}
	c.log.Infow("remaining credits", "credits", n)
}
