package server

import (
	"fmt"
	"html/template"
	"math/big"
	"strings"
	"time"

	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

type pageData struct {
	CampaignID  string
	View        *models.DashboardView
	Unavailable bool
}

func templateFuncs(explorerTxURL string) template.FuncMap {
	return template.FuncMap{
		"short": utils.ShortAddress,
		"ether": func(wei *big.Int) string {
			return utils.FormatEther(wei)
		},
		"percent": func(view *models.DashboardView) string {
			return formatPercent(view.ProgressPercent())
		},
		"txURL": func(txHash string) string {
			return txLink(explorerTxURL, txHash)
		},
		"when": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04 MST")
		},
	}
}

// formatPercent renders a percentage with two decimals
func formatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

func txLink(base, txHash string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + txHash
}

const dashboardPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Campaign {{.CampaignID}}</title>
</head>
<body>
<h1>Campaign {{.CampaignID}}</h1>
{{if .Unavailable}}
<p class="unavailable">This campaign's dashboard is unavailable right now. Reload to try again.</p>
{{else}}{{with .View}}
<section class="summary">
  <p>Owner: <span title="{{.Snapshot.Owner.Hex}}">{{short .Snapshot.Owner.Hex}}</span></p>
  <p>Raised {{ether .Snapshot.Raised}} ETH of {{ether .Snapshot.Goal}} ETH ({{percent .}})</p>
  <p>Contributors: {{.Snapshot.ContributorCount}}</p>
</section>
<section class="donations">
  <h2>Recent donations</h2>
  <ul>{{range .RecentDonations}}
    <li>{{short .Donor}} gave {{ether .Amount}} ETH on {{when .OccurredAt}} <a href="{{txURL .TxHash}}">tx</a></li>{{else}}
    <li>No donations yet</li>{{end}}
  </ul>
</section>
<section class="disbursements">
  <h2>Recent disbursements</h2>
  <ul>{{range .RecentDisbursements}}
    <li>{{ether .Amount}} ETH to {{short .Recipient}} on {{when .OccurredAt}} <a href="{{txURL .TxHash}}">tx</a></li>{{else}}
    <li>No disbursements yet</li>{{end}}
  </ul>
</section>
<section class="audit">
  <h2>Audit log</h2>
  <table>
    <tr><th>Kind</th><th>Address</th><th>Amount</th><th>Time</th><th>Transaction</th></tr>{{range .AuditLog}}
    <tr><td>{{.Kind}}</td><td>{{short .Counterparty}}</td><td>{{ether .Amount}} ETH</td><td>{{when .OccurredAt}}</td><td><a href="{{txURL .TxHash}}">{{short .TxHash}}</a></td></tr>{{end}}
  </table>
</section>
<section class="updates">
  <h2>Updates</h2>{{range .Updates}}
  <article>
    <p>{{.Body.Content}}</p>
    <small>{{when .Body.AuthoredAt}} <a href="{{txURL .TxHash}}">tx</a></small>
  </article>{{else}}
  <p>No updates yet</p>{{end}}
</section>
{{end}}{{end}}
</body>
</html>
`
