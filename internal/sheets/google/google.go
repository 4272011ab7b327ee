package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendwatch/internal/core"
	ports "spendwatch/internal/sheets"
)

// Client appends exceeded-transaction rows to a Google Sheets report.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.ReportWriter = (*Client)(nil)

// New creates a Sheets client authenticated with service account credentials.
func New(ctx context.Context, spreadsheetID, sheetName, credentialsJSON string) (*Client, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if credentialsJSON == "" {
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON([]byte(credentialsJSON)),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// Append writes one report row and returns the range it landed in.
func (c *Client) Append(ctx context.Context, et core.ExceededTransaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	row := []any{
		et.ID,
		et.Datetime.Format(time.RFC3339),
		et.AccountFrom,
		et.AccountTo,
		et.Currency,
		et.Amount.String(),
		et.USDAmount.String(),
		string(et.Category),
		et.LimitValue.String(),
		et.LimitEffectiveFrom.Format(time.RFC3339),
		et.LimitCurrency,
	}

	rng := fmt.Sprintf("%s!A:K", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}
