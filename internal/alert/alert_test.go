package alert_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/alertbell/internal/alert"
)

func mk(id string, c alert.Category, read bool) alert.Alert {
	return alert.Alert{ID: id, Type: c, Message: "msg " + id, Time: time.Unix(0, 0).UTC(), Read: read}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		in   string
		want alert.Category
	}{
		{"결제완료", alert.Payment},
		{"PAYMENT", alert.Payment},
		{"  refund ", alert.Payment},
		{"재고부족", alert.Stock},
		{"low_stock", alert.Stock},
		{"폐기임박", alert.Disposal},
		{"Expired", alert.Disposal},
		{"", alert.General},
		{"shipping", alert.General},
		{"\x00\xff", alert.General},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := alert.Categorize(tc.in)
			assert.Equal(t, tc.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestCategorizerExtraAliases(t *testing.T) {
	c := alert.NewCategorizer(map[string]alert.Category{
		"ORDER_PAID": alert.Payment,
		"bogus":      alert.All,
	})
	assert.Equal(t, alert.Payment, c.Categorize("order_paid"))
	assert.Equal(t, alert.General, c.Categorize("bogus"), "All is not storable")
	assert.Equal(t, alert.Stock, c.Categorize("재고"), "defaults kept")

	var nilCat *alert.Categorizer
	assert.Equal(t, alert.Payment, nilCat.Categorize("결제"))
}

func TestParseCategory(t *testing.T) {
	for in, want := range map[string]alert.Category{
		"":       alert.All,
		"전체":     alert.All,
		"stock":  alert.Stock,
		"재고":     alert.Stock,
		"Payment": alert.Payment,
		"폐기":     alert.Disposal,
		"general": alert.General,
	} {
		got, ok := alert.ParseCategory(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := alert.ParseCategory("shipping")
	assert.False(t, ok)
}

func TestUnreadCounts(t *testing.T) {
	seq := []alert.Alert{
		mk("1", alert.Payment, false),
		mk("2", alert.Stock, false),
		mk("3", alert.Payment, false),
	}
	counts := alert.UnreadCounts(seq)
	assert.Equal(t, alert.Counts{
		alert.All:      3,
		alert.Payment:  2,
		alert.Stock:    1,
		alert.Disposal: 0,
		alert.General:  0,
	}, counts)
}

func TestUnreadCountsSumMatchesAll(t *testing.T) {
	seq := []alert.Alert{
		mk("1", alert.Payment, true),
		mk("2", alert.Stock, false),
		mk("3", alert.Disposal, false),
		mk("4", alert.General, false),
		mk("5", alert.General, true),
	}
	counts := alert.UnreadCounts(seq)
	sum := 0
	for _, c := range alert.Categories() {
		sum += counts[c]
	}
	assert.Equal(t, counts[alert.All], sum)
	assert.Equal(t, 3, sum)
}

func TestVisible(t *testing.T) {
	first := mk("1", alert.Stock, false)
	seq := []alert.Alert{
		first,
		mk("2", alert.Stock, true),
		mk("3", alert.Payment, false),
	}

	assert.Equal(t, []alert.Alert{first}, alert.Visible(seq, alert.Stock, true))
	assert.Equal(t, seq[:2], alert.Visible(seq, alert.Stock, false))
	assert.Equal(t, seq, alert.Visible(seq, alert.All, false))
	assert.Equal(t, []alert.Alert{seq[0], seq[2]}, alert.Visible(seq, alert.All, true))
	assert.Empty(t, alert.Visible(seq, alert.Disposal, false))

	// Pure: same input, same output, input untouched.
	again := alert.Visible(seq, alert.Stock, true)
	assert.Equal(t, alert.Visible(seq, alert.Stock, true), again)
	assert.Len(t, seq, 3)
}
