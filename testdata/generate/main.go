package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/orders"
)

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	generateFees(baseDir)
	reqs := generateOrders(rng, baseDir)
	generateStatusCSV(rng, reqs, baseDir)
}

func generateFees(baseDir string) {
	pct := func(v string) domain.FeeDefinition {
		return domain.FeeDefinition{Scope: domain.GlobalScope, ValueType: domain.FeePercentage, Value: decimal.RequireFromString(v), Active: true}
	}
	fixed := func(v string) domain.FeeDefinition {
		return domain.FeeDefinition{Scope: domain.GlobalScope, ValueType: domain.FeeFixed, Value: decimal.RequireFromString(v), Active: true}
	}
	with := func(d domain.FeeDefinition, op domain.OperationType) domain.FeeDefinition {
		d.OperationType = op
		return d
	}

	capped := pct("3.5")
	capped.AdditiveFixed = decimal.RequireFromString("0.50")
	limit := decimal.RequireFromString("25.00")
	capped.Cap = &limit

	defs := []domain.FeeDefinition{
		with(pct("4.99"), domain.OpTransaction),
		with(pct("0.99"), domain.OpPix),
		with(capped, domain.OpCardD30),
		with(pct("5.49"), domain.OpCardD2),
		with(pct("4.29"), domain.OpCardD15),
		with(fixed("3.49"), domain.OpBoleto),
		with(fixed("3.67"), domain.OpWithdrawal),
		with(pct("2.5"), domain.OpAnticipation),
		with(fixed("15.00"), domain.OpChargeback),
	}

	// A negotiated tenant keeps a cheaper pix rate and pays no withdrawal fee.
	tenantPix := with(pct("0.49"), domain.OpPix)
	tenantPix.Scope = "tenant-acme"
	tenantWithdrawal := with(fixed("0"), domain.OpWithdrawal)
	tenantWithdrawal.Scope = "tenant-acme"
	defs = append(defs, tenantPix, tenantWithdrawal)

	writeJSONFile(filepath.Join(baseDir, "fees.json"), defs)
	fmt.Printf("Generated %d fee definitions -> fees.json\n", len(defs))
}

func generateOrders(rng *rand.Rand, baseDir string) []orders.CreateRequest {
	tenants := []string{"tenant-acme", "tenant-nova"}
	methods := []domain.PaymentMethod{domain.MethodCard, domain.MethodPix, domain.MethodBoleto}

	reqs := make([]orders.CreateRequest, 0, 40)
	for i := 1; i <= 40; i++ {
		req := orders.CreateRequest{
			TransactionRef: fmt.Sprintf("TX-%04d", i),
			TenantID:       tenants[rng.Intn(len(tenants))],
			PayeeID:        fmt.Sprintf("payee-%02d", rng.Intn(8)+1),
			PaymentMethod:  methods[rng.Intn(len(methods))],
			// 20.00 to 2000.00 in whole cents.
			GrossAmount: decimal.New(int64(rng.Intn(198000)+2000), -2),
		}
		// Roughly a third of sales come through an affiliate.
		if rng.Intn(3) == 0 {
			req.AffiliateID = fmt.Sprintf("affiliate-%02d", rng.Intn(4)+1)
			req.AffiliateRate = decimal.NewFromInt(int64(rng.Intn(4)+1) * 5)
		}
		reqs = append(reqs, req)
	}

	writeJSONFile(filepath.Join(baseDir, "orders.json"), reqs)
	fmt.Printf("Generated %d demo orders -> orders.json\n", len(reqs))
	return reqs
}

func generateStatusCSV(rng *rand.Rand, reqs []orders.CreateRequest, baseDir string) {
	path := filepath.Join(baseDir, "statuses.csv")
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"transaction_ref", "status", "reported_at"})

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	count := 0
	for i, req := range reqs {
		at := start.Add(time.Duration(i*7+rng.Intn(5)) * time.Minute)

		roll := rng.Float64()
		switch {
		case roll < 0.60:
			w.Write([]string{req.TransactionRef, "paid", at.Format(time.RFC3339)})
		case roll < 0.70:
			w.Write([]string{req.TransactionRef, "refused", at.Format(time.RFC3339)})
		case roll < 0.80:
			// Approved, then refunded later in the same report.
			w.Write([]string{req.TransactionRef, "approved", at.Format(time.RFC3339)})
			w.Write([]string{req.TransactionRef, "refunded", at.Add(36 * time.Hour).Format(time.RFC3339)})
			count++
		case roll < 0.85:
			// A late pending must not regress an approval.
			w.Write([]string{req.TransactionRef, "approved", at.Format(time.RFC3339)})
			w.Write([]string{req.TransactionRef, "waiting_payment", at.Add(time.Hour).Format(time.RFC3339)})
			count++
		case roll < 0.90:
			w.Write([]string{req.TransactionRef, "in_analysis", at.Format(time.RFC3339)})
		default:
			continue
		}
		count++
	}

	// Rows for transactions this ledger never saw.
	for i := 1; i <= 2; i++ {
		at := start.Add(time.Duration(i) * time.Hour)
		w.Write([]string{fmt.Sprintf("UNKNOWN-%03d", i), "paid", at.Format(time.RFC3339)})
		count++
	}

	fmt.Printf("Generated %d status rows -> statuses.csv\n", count)
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	// Look for the testdata directory relative to common locations.
	candidates := []string{
		"testdata",
		"./testdata",
		"../testdata",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	// Fallback.
	return "testdata"
}
