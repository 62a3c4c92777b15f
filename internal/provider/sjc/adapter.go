package sjc

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vnmarket/internal/classify"
	"vnmarket/internal/provider"
)

// chiPerTael converts tael (lượng) prices to chỉ.
var chiPerTael = decimal.NewFromInt(10)

// Adapter normalizes SJC bar gold prices into provider records. The close
// and OHLC fields carry the sell price; buy and sell are kept alongside.
// VN.GOLD.C is priced per chỉ, every other gold symbol per tael.
type Adapter struct {
	client *Client
	log    zerolog.Logger
	now    func() time.Time
}

func New(client *Client, log zerolog.Logger) *Adapter {
	return &Adapter{
		client: client,
		log:    log.With().Str("client", "sjc").Logger(),
		now:    time.Now,
	}
}

func (a *Adapter) Name() string { return "SJC" }

// LatestQuote returns today's bar gold price, or nil when the board has no
// bar gold row.
func (a *Adapter) LatestQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	now := a.now()
	board, err := a.client.PricesByDate(ctx, now)
	if err != nil {
		return nil, err
	}
	row, ok := pickBarGold(board.Data)
	if !ok {
		return nil, nil
	}
	date, err := board.UpdatedAt()
	if err != nil {
		date = now.In(vnTZ)
	}
	q := toRecord(symbol, date, row)
	return &q, nil
}

// History returns one record per day within [start, end] in ascending date
// order. When SJC revises a price during the day the last revision wins.
// Rows whose date does not parse are dropped.
func (a *Adapter) History(ctx context.Context, symbol string, start, end time.Time) ([]provider.Record, error) {
	rows, err := a.client.PriceHistory(ctx, start, end)
	if err != nil {
		return nil, err
	}
	from, to := provider.Day(start), provider.Day(end)
	byDay := make(map[time.Time]provider.Record, len(rows))
	stamps := make(map[time.Time]time.Time, len(rows))
	dropped := 0
	for _, r := range rows {
		date, err := r.Date()
		if err != nil {
			dropped++
			continue
		}
		q := toRecord(symbol, date, r)
		if q.Date.Before(from) || q.Date.After(to) {
			continue
		}
		if prev, seen := stamps[q.Date]; seen && date.Before(prev) {
			continue
		}
		byDay[q.Date] = q
		stamps[q.Date] = date
	}
	if dropped > 0 {
		a.log.Warn().Str("symbol", symbol).Int("dropped", dropped).Msg("skipped gold rows with unparseable dates")
	}
	out := make([]provider.Record, 0, len(byDay))
	for _, q := range byDay {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// pickBarGold returns the SJC bar quote, preferring the Ho Chi Minh City
// branch over any other. Boards without a bar row yield false rather than
// borrowing a ring or jewellery price.
func pickBarGold(rows []PriceRow) (PriceRow, bool) {
	var fallback *PriceRow
	for i, r := range rows {
		if !isBarGold(r) {
			continue
		}
		if strings.Contains(r.BranchName, "Hồ Chí Minh") {
			return r, true
		}
		if fallback == nil {
			fallback = &rows[i]
		}
	}
	if fallback == nil {
		return PriceRow{}, false
	}
	return *fallback, true
}

// isBarGold matches "Vàng SJC 1L, 10L, 1KG" style rows. Ring and jewellery
// products also carry the SJC brand and are excluded by name.
func isBarGold(r PriceRow) bool {
	name := strings.ToLower(r.TypeName)
	return strings.Contains(name, "sjc") && !strings.Contains(name, "nhẫn") && !strings.Contains(name, "nữ trang")
}

func toRecord(symbol string, date time.Time, r PriceRow) provider.Quote {
	buy := decimal.NewFromFloat(r.BuyValue)
	sell := decimal.NewFromFloat(r.SellValue)
	if classify.Normalize(symbol) == classify.GoldChi {
		buy = buy.Div(chiPerTael)
		sell = sell.Div(chiPerTael)
	}
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return provider.NewFlatRecord(symbol, provider.Gold, day, sell).WithGoldPrices(buy, sell)
}
