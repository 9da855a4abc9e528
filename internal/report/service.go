// Package report derives read-only aggregates from committed ledger history.
package report

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/orders"
	"github.com/safar/go-stock-ledger/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	// Uncategorized labels sales of items without a category.
	Uncategorized = "Uncategorized"
	// NoOrderID is exported for sale lines recorded without an order id.
	NoOrderID = "N/A"

	DefaultLowStockThreshold = 10
	DashboardSeriesDays      = 30
	MaxSeriesDays            = 366

	dateLayout = "2006-01-02"
)

// Reader is the slice of the store reports need.
type Reader interface {
	ListSales(ctx context.Context, filter store.SaleFilter) ([]models.SaleLine, error)
	ListItems(ctx context.Context, filter store.ItemFilter) ([]models.Item, error)
}

type Service struct {
	reader            Reader
	cache             *Cache
	loc               *time.Location
	lowStockThreshold int64
	logger            zerolog.Logger
}

type Option func(*Service)

func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLocation sets the time zone calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLowStockThreshold(n int64) Option {
	return func(s *Service) { s.lowStockThreshold = n }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(reader Reader, opts ...Option) *Service {
	s := &Service{
		reader:            reader,
		loc:               time.UTC,
		lowStockThreshold: DefaultLowStockThreshold,
		logger:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type MonthlySummary struct {
	Year       int        `json:"year"`
	Month      time.Month `json:"month"`
	Revenue    int64      `json:"revenue"`
	Discount   int64      `json:"discount"`
	NetRevenue int64      `json:"net_revenue"`
	ItemsSold  int64      `json:"items_sold"`
	Profit     int64      `json:"profit"`
}

type ProductSales struct {
	ItemID   int64  `json:"item_id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Revenue  int64  `json:"revenue"`
}

type CategoryRevenue struct {
	Category string `json:"category"`
	Revenue  int64  `json:"revenue"`
	Quantity int64  `json:"quantity"`
}

type DailyPoint struct {
	Date    string `json:"date"`
	Revenue int64  `json:"revenue"`
}

type Dashboard struct {
	SalesToday     int64         `json:"sales_today"`
	TotalRevenue   int64         `json:"total_revenue"`
	InventoryValue int64         `json:"inventory_value"`
	LowStockCount  int           `json:"low_stock_count"`
	LowStockItems  []models.Item `json:"low_stock_items"`
	Series         []DailyPoint  `json:"series"`
}

// ExportRow is one sale line in export column order.
type ExportRow struct {
	OrderID   string    `json:"order_id"`
	Date      time.Time `json:"date"`
	Product   string    `json:"product"`
	Category  string    `json:"category"`
	Quantity  int64     `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	Discount  int64     `json:"discount"`
	Revenue   int64     `json:"revenue"`
	Cost      int64     `json:"cost"`
	Profit    int64     `json:"profit"`
}

// Location is the time zone reports bucket days in.
func (s *Service) Location() *time.Location { return s.loc }

// DayRange returns [start of day, start of next day) for t's calendar day.
func (s *Service) DayRange(t time.Time) (time.Time, time.Time) {
	t = t.In(s.loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

// MonthRange returns [first day of month, first day of next month).
func (s *Service) MonthRange(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 1, 0)
}

func (s *Service) sales(ctx context.Context, ownerID int64, from, to time.Time) ([]models.SaleLine, error) {
	lines, err := s.reader.ListSales(ctx, store.SaleFilter{OwnerID: ownerID, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return lines, nil
}

// DailyRevenue sums total prices of sales on day's calendar day.
func (s *Service) DailyRevenue(ctx context.Context, ownerID int64, day time.Time) (int64, error) {
	from, to := s.DayRange(day)
	lines, err := s.sales(ctx, ownerID, from, to)
	if err != nil {
		return 0, err
	}
	return sumRevenue(lines), nil
}

func (s *Service) MonthlySummary(ctx context.Context, ownerID int64, year int, month time.Month) (MonthlySummary, error) {
	if month < time.January || month > time.December {
		return MonthlySummary{}, database.InvalidInputf("month must be between 1 and 12, got %d", month)
	}

	var out MonthlySummary
	err := cached(ctx, s, ownerID, &out, func(ctx context.Context) (MonthlySummary, error) {
		from, to := s.MonthRange(year, month)
		lines, err := s.sales(ctx, ownerID, from, to)
		if err != nil {
			return MonthlySummary{}, err
		}

		sum := MonthlySummary{Year: year, Month: month}
		for _, l := range lines {
			sum.Revenue += l.TotalPrice
			sum.Discount += l.Discount
			sum.NetRevenue += l.NetPrice()
			sum.ItemsSold += l.Quantity
			sum.Profit += l.LineProfit()
		}
		return sum, nil
	}, "monthly", strconv.Itoa(year), strconv.Itoa(int(month)))
	return out, err
}

// TopProducts ranks items by quantity sold in [from, to). Ties are broken
// by name, then id.
func (s *Service) TopProducts(ctx context.Context, ownerID int64, from, to time.Time, n int) ([]ProductSales, error) {
	if n <= 0 {
		return nil, database.InvalidInputf("limit must be positive, got %d", n)
	}

	var out []ProductSales
	err := cached(ctx, s, ownerID, &out, func(ctx context.Context) ([]ProductSales, error) {
		lines, err := s.sales(ctx, ownerID, from, to)
		if err != nil {
			return nil, err
		}

		byItem := make(map[int64]*ProductSales)
		for _, l := range lines {
			p, ok := byItem[l.ItemID]
			if !ok {
				p = &ProductSales{ItemID: l.ItemID, Name: l.ItemName}
				byItem[l.ItemID] = p
			}
			p.Quantity += l.Quantity
			p.Revenue += l.TotalPrice
		}

		ranked := make([]ProductSales, 0, len(byItem))
		for _, p := range byItem {
			ranked = append(ranked, *p)
		}
		sort.Slice(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if a.Quantity != b.Quantity {
				return a.Quantity > b.Quantity
			}
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ItemID < b.ItemID
		})
		if len(ranked) > n {
			ranked = ranked[:n]
		}
		return ranked, nil
	}, "top", rangeToken(from), rangeToken(to), strconv.Itoa(n))
	return out, err
}

// CategoryBreakdown sums revenue per category in [from, to), highest first.
func (s *Service) CategoryBreakdown(ctx context.Context, ownerID int64, from, to time.Time) ([]CategoryRevenue, error) {
	var out []CategoryRevenue
	err := cached(ctx, s, ownerID, &out, func(ctx context.Context) ([]CategoryRevenue, error) {
		lines, err := s.sales(ctx, ownerID, from, to)
		if err != nil {
			return nil, err
		}

		byCategory := make(map[string]*CategoryRevenue)
		for _, l := range lines {
			name := l.CategoryName
			if name == "" {
				name = Uncategorized
			}
			c, ok := byCategory[name]
			if !ok {
				c = &CategoryRevenue{Category: name}
				byCategory[name] = c
			}
			c.Revenue += l.TotalPrice
			c.Quantity += l.Quantity
		}

		breakdown := make([]CategoryRevenue, 0, len(byCategory))
		for _, c := range byCategory {
			breakdown = append(breakdown, *c)
		}
		sort.Slice(breakdown, func(i, j int) bool {
			if breakdown[i].Revenue != breakdown[j].Revenue {
				return breakdown[i].Revenue > breakdown[j].Revenue
			}
			return breakdown[i].Category < breakdown[j].Category
		})
		return breakdown, nil
	}, "categories", rangeToken(from), rangeToken(to))
	return out, err
}

// RevenueSeries returns daily revenue for the days consecutive calendar
// days ending with end's day, oldest first. Days without sales are zero.
func (s *Service) RevenueSeries(ctx context.Context, ownerID int64, end time.Time, days int) ([]DailyPoint, error) {
	if days <= 0 || days > MaxSeriesDays {
		return nil, database.InvalidInputf("days must be between 1 and %d, got %d", MaxSeriesDays, days)
	}

	lastStart, to := s.DayRange(end)
	from := lastStart.AddDate(0, 0, -(days - 1))

	var out []DailyPoint
	err := cached(ctx, s, ownerID, &out, func(ctx context.Context) ([]DailyPoint, error) {
		lines, err := s.sales(ctx, ownerID, from, to)
		if err != nil {
			return nil, err
		}

		byDay := make(map[string]int64, days)
		for _, l := range lines {
			byDay[l.SoldAt.In(s.loc).Format(dateLayout)] += l.TotalPrice
		}

		series := make([]DailyPoint, days)
		for i := range series {
			date := from.AddDate(0, 0, i).Format(dateLayout)
			series[i] = DailyPoint{Date: date, Revenue: byDay[date]}
		}
		return series, nil
	}, "series", from.Format(dateLayout), strconv.Itoa(days))
	return out, err
}

// Dashboard collects the overview figures for now's day. The independent
// queries run concurrently.
func (s *Service) Dashboard(ctx context.Context, ownerID int64, now time.Time) (Dashboard, error) {
	var out Dashboard
	err := cached(ctx, s, ownerID, &out, func(ctx context.Context) (Dashboard, error) {
		var d Dashboard
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			revenue, err := s.DailyRevenue(gctx, ownerID, now)
			d.SalesToday = revenue
			return err
		})
		g.Go(func() error {
			lines, err := s.sales(gctx, ownerID, time.Time{}, time.Time{})
			d.TotalRevenue = sumRevenue(lines)
			return err
		})
		g.Go(func() error {
			items, err := s.reader.ListItems(gctx, store.ItemFilter{OwnerID: ownerID})
			if err != nil {
				return fmt.Errorf("list items: %w", err)
			}
			for _, item := range items {
				d.InventoryValue += item.TotalValue()
			}
			return nil
		})
		g.Go(func() error {
			threshold := s.lowStockThreshold
			items, err := s.reader.ListItems(gctx, store.ItemFilter{OwnerID: ownerID, BelowQuantity: &threshold})
			if err != nil {
				return fmt.Errorf("list low stock items: %w", err)
			}
			if items == nil {
				items = []models.Item{}
			}
			d.LowStockItems = items
			d.LowStockCount = len(items)
			return nil
		})
		g.Go(func() error {
			series, err := s.RevenueSeries(gctx, ownerID, now, DashboardSeriesDays)
			d.Series = series
			return err
		})

		if err := g.Wait(); err != nil {
			return Dashboard{}, err
		}
		return d, nil
	}, "dashboard", now.In(s.loc).Format(dateLayout))
	return out, err
}

// ExportRows returns one row per sale line in [from, to), newest first.
func (s *Service) ExportRows(ctx context.Context, ownerID int64, from, to time.Time) ([]ExportRow, error) {
	lines, err := s.sales(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}

	rows := make([]ExportRow, 0, len(lines))
	for _, l := range lines {
		orderID := NoOrderID
		if l.OrderID != nil {
			orderID = *l.OrderID
		}
		category := l.CategoryName
		if category == "" {
			category = Uncategorized
		}
		rows = append(rows, ExportRow{
			OrderID:   orderID,
			Date:      l.SoldAt.In(s.loc),
			Product:   l.ItemName,
			Category:  category,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice(),
			Discount:  l.Discount,
			Revenue:   l.NetPrice(),
			Cost:      l.LineCost(),
			Profit:    l.LineProfit(),
		})
	}
	return rows, nil
}

// Receipts groups the sale lines of [from, to) into receipts, newest first.
func (s *Service) Receipts(ctx context.Context, ownerID int64, from, to time.Time) ([]orders.Receipt, error) {
	lines, err := s.sales(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	return orders.Group(lines), nil
}

// Receipt returns the receipt of one order.
func (s *Service) Receipt(ctx context.Context, ownerID int64, orderID string) (*orders.Receipt, error) {
	lines, err := s.reader.ListSales(ctx, store.SaleFilter{OwnerID: ownerID, OrderID: orderID})
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return orders.Lookup(lines, orderID)
}

func sumRevenue(lines []models.SaleLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.TotalPrice
	}
	return total
}

func rangeToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

// cached serves a report through the cache. Cache failures are logged and
// the report is computed directly.
func cached[T any](ctx context.Context, s *Service, ownerID int64, dest *T, loader func(context.Context) (T, error), parts ...string) error {
	var loadErr error
	err := FetchJSON(ctx, s.cache, ownerID, dest, func(ctx context.Context) (T, error) {
		v, err := loader(ctx)
		loadErr = err
		return v, err
	}, parts...)
	if err == nil || loadErr != nil {
		return err
	}

	s.logger.Warn().Err(err).Int64("owner_id", ownerID).Strs("key", parts).Msg("report cache unavailable")
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	*dest = v
	return nil
}
