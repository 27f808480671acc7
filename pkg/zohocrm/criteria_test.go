package zohocrm_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/natserract/zcrm/pkg/zohocrm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeCriteria(t *testing.T) {
	t.Parallel()

	for _, value := range []string{
		"Acme (AU)",
		"((nested))",
		"no parens",
		"",
		`already \(escaped\)`,
		"trailing (",
	} {
		once := zohocrm.EscapeCriteria(value)
		assert.Equal(t, once, zohocrm.EscapeCriteria(once), "value %q", value)
		assert.NotRegexp(t, `(^|[^\\])[()]`, once, "value %q", value)
	}

	assert.Equal(t, `Acme \(AU\)`, zohocrm.EscapeCriteria("Acme (AU)"))
	assert.Equal(t, `Smith \& Sons`, zohocrm.EscapeAmpersand("Smith & Sons"))
	assert.Equal(t, `Smith \& Sons`, zohocrm.EscapeAmpersand(zohocrm.EscapeAmpersand("Smith & Sons")))
}

func TestCriteriaBuilders(t *testing.T) {
	t.Parallel()

	a := zohocrm.Criterion("Email", "equals", "a@example.com")
	b := zohocrm.Criterion("Account_Name", "starts_with", "Acme (")

	assert.Equal(t, "(Email:equals:a@example.com)", a)
	assert.Equal(t, `(Account_Name:starts_with:Acme \()`, b)
	assert.Equal(t, a, zohocrm.And(a))
	assert.Equal(t, "", zohocrm.Or())
	assert.Equal(t, `((Email:equals:a@example.com)and(Account_Name:starts_with:Acme \())`, zohocrm.And(a, b))
	assert.Equal(t, "((Email:equals:a@example.com)or(Email:equals:b@example.com))",
		zohocrm.Or(a, zohocrm.Criterion("Email", "equals", "b@example.com")))
	assert.Equal(t, "(Stage:in:Won,Lost)", zohocrm.In("Stage", "Won", "Lost"))
	assert.Equal(t, "Price_Books/42/Products", zohocrm.RelatedModule("Price_Books", "42", "Products"))
}

func TestTimeFormat(t *testing.T) {
	t.Parallel()

	brisbane := time.FixedZone("AEST", 10*60*60)
	ts := time.Date(2019, 5, 13, 10, 3, 55, 987654321, brisbane)
	assert.Equal(t, "2019-05-13T10:03:55+10:00", zohocrm.FormatTime(ts))

	tests := []struct {
		value string
		want  time.Time
	}{
		{value: "2019-05-13T10:03:55+10:00", want: time.Date(2019, 5, 13, 0, 3, 55, 0, time.UTC)},
		{value: "2019-05-13T10:03:55.123Z", want: time.Date(2019, 5, 13, 10, 3, 55, 123000000, time.UTC)},
		{value: "2019-05-13T10:03:55.123", want: time.Date(2019, 5, 13, 10, 3, 55, 0, time.UTC)},
		{value: "2019-05-13", want: time.Date(2019, 5, 13, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		parsed, err := zohocrm.ParseTime(tt.value)
		require.NoError(t, err, tt.value)
		assert.True(t, tt.want.Equal(parsed), "%s parsed as %s", tt.value, parsed)
	}

	_, err := zohocrm.ParseTime("13/05/2019")
	assert.Error(t, err)
}

func TestAPITime_JSON(t *testing.T) {
	t.Parallel()

	var record struct {
		Modified zohocrm.APITime `json:"Modified_Time"`
		Closed   zohocrm.APITime `json:"Closing_Date"`
		Empty    zohocrm.APITime `json:"Empty"`
	}
	err := json.Unmarshal([]byte(`{"Modified_Time":"2019-05-13T10:03:55+10:00","Closing_Date":"2019-06-01","Empty":""}`), &record)
	require.NoError(t, err)
	assert.Equal(t, 2019, record.Modified.Year())
	assert.Equal(t, time.June, record.Closed.Month())
	assert.True(t, record.Empty.IsZero())

	out, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Modified_Time":"2019-05-13T10:03:55+10:00","Closing_Date":"2019-06-01T00:00:00+00:00","Empty":null}`, string(out))
}
