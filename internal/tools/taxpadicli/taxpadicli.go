// Package taxpadicli implements the taxpadi command: one-off tax
// computations and read access to record chains and audit trails.
package taxpadicli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/taxpadi/taxpadi/internal/ledger"
	"github.com/taxpadi/taxpadi/internal/ledger/service"
	"github.com/taxpadi/taxpadi/internal/ledger/storage/sqlite"
	"github.com/taxpadi/taxpadi/internal/money"
	"github.com/taxpadi/taxpadi/internal/tax"
)

// Config holds taxpadi command configuration.
type Config struct {
	DBPath string `env:"TAXPADI_DB_PATH"`

	// Compute mode.
	Compute     bool
	TaxType     string
	AsOf        string
	Income      string
	Sales       string
	Purchases   string
	Transaction string
	Payment     string
	Sector      string
	Turnover    string
	Profit      string
	Proceeds    string
	Cost        string

	// Read modes.
	ChainID string
	TrailID string
	Summary string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "taxpadi.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to sqlite database (default: TAXPADI_DB_PATH or data/taxpadi.db)")
	fs.BoolVar(&cfg.Compute, "compute", false, "compute a tax figure from the basis flags")
	fs.StringVar(&cfg.TaxType, "tax-type", "", "tax type for -compute (PIT|VAT|WHT|CIT|CGT)")
	fs.StringVar(&cfg.AsOf, "as-of", "", "effective date for -compute, YYYY-MM-DD (default: today)")
	fs.StringVar(&cfg.Income, "income", "", "annual income in naira (PIT)")
	fs.StringVar(&cfg.Sales, "sales", "", "taxable sales in naira (VAT)")
	fs.StringVar(&cfg.Purchases, "purchases", "", "taxable purchases in naira (VAT)")
	fs.StringVar(&cfg.Transaction, "transaction", "", "transaction type (WHT)")
	fs.StringVar(&cfg.Payment, "payment", "", "payment amount in naira (WHT)")
	fs.StringVar(&cfg.Sector, "sector", "", "company sector (CIT)")
	fs.StringVar(&cfg.Turnover, "turnover", "", "annual turnover in naira (CIT)")
	fs.StringVar(&cfg.Profit, "profit", "", "assessable profit in naira (CIT)")
	fs.StringVar(&cfg.Proceeds, "proceeds", "", "disposal proceeds in naira (CGT)")
	fs.StringVar(&cfg.Cost, "cost", "", "acquisition cost in naira (CGT)")
	fs.StringVar(&cfg.ChainID, "chain", "", "print the correction chain containing this record id")
	fs.StringVar(&cfg.TrailID, "trail", "", "print the audit trail for this record id")
	fs.StringVar(&cfg.Summary, "summary", "", "print the active-record summary for this owner")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the taxpadi command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	if cfg.Compute {
		return runCompute(cfg, out)
	}
	if cfg.ChainID == "" && cfg.TrailID == "" && cfg.Summary == "" {
		return errors.New("nothing to do: pass -compute, -chain, -trail or -summary")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	svc := service.New(store, tax.Default())

	if cfg.ChainID != "" {
		if err := printChain(ctx, svc, cfg.ChainID, out); err != nil {
			return err
		}
	}
	if cfg.TrailID != "" {
		if err := printTrail(ctx, svc, cfg.TrailID, out); err != nil {
			return err
		}
	}
	if cfg.Summary != "" {
		if err := printSummary(ctx, svc, cfg.Summary, out); err != nil {
			return err
		}
	}
	return nil
}

func runCompute(cfg Config, out io.Writer) error {
	input, err := buildInput(cfg)
	if err != nil {
		return err
	}
	asOf := time.Now().UTC()
	if cfg.AsOf != "" {
		asOf, err = time.Parse("2006-01-02", cfg.AsOf)
		if err != nil {
			return fmt.Errorf("parse -as-of: %w", err)
		}
	}

	output, err := tax.Default().Compute(input, asOf)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "rule set: %s\n", output.RuleVersion)
	fmt.Fprintf(out, "tax due:  %s\n", output.TaxDue().FormatNaira())
	switch output.Type {
	case tax.TypePIT:
		fmt.Fprintf(out, "effective rate: %s\n", output.PIT.FormatEffectiveRate())
		for _, band := range output.PIT.Bands {
			fmt.Fprintf(out, "  band %d bps on %s: %s\n",
				band.RateBps, band.Taxable.FormatNaira(), band.Tax.FormatNaira())
		}
	case tax.TypeVAT:
		fmt.Fprintf(out, "output VAT: %s, input VAT: %s\n",
			output.VAT.OutputVAT.FormatNaira(), output.VAT.InputVAT.FormatNaira())
	case tax.TypeCIT:
		fmt.Fprintf(out, "tier: %s (rate %d bps)\n", output.CIT.Tier, output.CIT.RateBps)
	case tax.TypeCGT:
		fmt.Fprintf(out, "chargeable gain: %s (exemption %s)\n",
			output.CGT.ChargeableGain.FormatNaira(), output.CGT.ExemptionApplied.FormatNaira())
	}
	return nil
}

func buildInput(cfg Config) (tax.Input, error) {
	taxType := tax.Type(cfg.TaxType)
	switch taxType {
	case tax.TypePIT:
		income, err := money.ParseStrict(cfg.Income)
		if err != nil {
			return tax.Input{}, fmt.Errorf("parse -income: %w", err)
		}
		return tax.Input{Type: taxType, PIT: &tax.PITInput{AnnualIncome: income}}, nil
	case tax.TypeVAT:
		sales, err := money.ParseStrict(cfg.Sales)
		if err != nil {
			return tax.Input{}, fmt.Errorf("parse -sales: %w", err)
		}
		purchases := money.Parse(cfg.Purchases)
		return tax.Input{Type: taxType, VAT: &tax.VATInput{
			TaxableSales: sales, TaxablePurchases: purchases,
		}}, nil
	case tax.TypeWHT:
		payment, err := money.ParseStrict(cfg.Payment)
		if err != nil {
			return tax.Input{}, fmt.Errorf("parse -payment: %w", err)
		}
		return tax.Input{Type: taxType, WHT: &tax.WHTInput{
			TransactionType: cfg.Transaction, Payment: payment,
		}}, nil
	case tax.TypeCIT:
		turnover, err := money.ParseStrict(cfg.Turnover)
		if err != nil {
			return tax.Input{}, fmt.Errorf("parse -turnover: %w", err)
		}
		profit, err := money.ParseStrict(cfg.Profit)
		if err != nil {
			return tax.Input{}, fmt.Errorf("parse -profit: %w", err)
		}
		return tax.Input{Type: taxType, CIT: &tax.CITInput{
			Sector: cfg.Sector, AnnualTurnover: turnover, AssessableProfit: profit,
		}}, nil
	case tax.TypeCGT:
		proceeds, err := money.ParseStrict(cfg.Proceeds)
		if err != nil {
			return tax.Input{}, fmt.Errorf("parse -proceeds: %w", err)
		}
		cost := money.Parse(cfg.Cost)
		return tax.Input{Type: taxType, CGT: &tax.CGTInput{
			Proceeds: proceeds, Cost: cost,
		}}, nil
	default:
		return tax.Input{}, fmt.Errorf("unknown tax type %q", cfg.TaxType)
	}
}

func printChain(ctx context.Context, svc *service.Service, recordID string, out io.Writer) error {
	chain, err := svc.QueryChain(ctx, recordID)
	if err != nil {
		return err
	}
	for _, record := range chain {
		marker := " "
		if record.Status == ledger.StatusActive {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %-10s %-10s %12s  %s\n",
			marker, record.ID, record.Kind, record.Status,
			record.Amount.FormatNaira(), record.Description)
	}
	return nil
}

func printTrail(ctx context.Context, svc *service.Service, recordID string, out io.Writer) error {
	entries, err := svc.AuditTrail(ctx, recordID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Fprintf(out, "%s  %-22s actor=%s\n",
			entry.CreatedAt.Format(time.RFC3339), entry.Action, entry.Actor)
	}
	return nil
}

func printSummary(ctx context.Context, svc *service.Service, owner string, out io.Writer) error {
	summary, err := svc.Summary(ctx, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "active records: %d\n", summary.ActiveRecords)
	fmt.Fprintf(out, "total income:   %s\n", summary.TotalIncome.FormatNaira())
	fmt.Fprintf(out, "total expense:  %s\n", summary.TotalExpense.FormatNaira())
	return nil
}
