package assistant

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/i18n"
	"github.com/nidohq/nido/internal/storage"
)

const (
	upcomingEventLimit = 5
	shoppingListLimit  = 10
	eventWindow        = 7 * 24 * time.Hour
)

// Snapshot is a read-only projection of family state assembled once per
// chat turn. It is never a vehicle for mutation.
type Snapshot struct {
	TodayEvents    []EventSummary
	UpcomingEvents []EventSummary
	PendingTasks   []TaskSummary
	OverdueTasks   []TaskSummary
	ShoppingList   []ShoppingSummary
	MonthlyBudget  Budget
	FamilyMembers  []MemberSummary
	UserRole       domain.Role
	UserName       string
	Language       i18n.Lang
}

// EventSummary is a lightweight event projection for the prompt.
type EventSummary struct {
	Title    string
	StartsAt time.Time
	EndsAt   *time.Time
	Category string
}

// TaskSummary is a lightweight task projection for the prompt.
type TaskSummary struct {
	Title    string
	DueAt    *time.Time
	Priority string
	Assignee string
}

// ShoppingSummary is an unpurchased shopping-list entry.
type ShoppingSummary struct {
	Name     string
	Quantity int
}

// Budget aggregates the current calendar month's expenses. Amounts are
// decimal strings; uncategorized spending is bucketed under "other".
type Budget struct {
	Total      string
	ByCategory map[string]string
}

// MemberSummary is a family-roster entry.
type MemberSummary struct {
	ID   string
	Name string
	Role domain.Role
}

// Snapshotter builds context snapshots from the family store.
type Snapshotter struct {
	store storage.FamilyStore
	now   func() time.Time
}

// NewSnapshotter creates a snapshotter. now is injectable for tests;
// nil means time.Now.
func NewSnapshotter(store storage.FamilyStore, now func() time.Time) *Snapshotter {
	if now == nil {
		now = time.Now
	}
	return &Snapshotter{store: store, now: now}
}

// BuildSnapshot issues the five underlying reads concurrently and
// assembles the projection. Any read failure aborts the whole snapshot;
// a partial or stale snapshot is never returned.
func (s *Snapshotter) BuildSnapshot(ctx context.Context, familyID, userID string, lang i18n.Lang) (*Snapshot, error) {
	now := s.now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	var (
		events   []domain.Event
		tasks    []domain.Task
		shopping []domain.ShoppingItem
		expenses []domain.Expense
		members  []domain.Member
		user     *domain.Member
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		events, err = s.store.ListEventsBetween(gctx, familyID, todayStart, todayStart.Add(eventWindow))
		return err
	})
	g.Go(func() (err error) {
		tasks, err = s.store.ListTasks(gctx, familyID)
		return err
	})
	g.Go(func() (err error) {
		shopping, err = s.store.ListShoppingItems(gctx, familyID)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = s.store.ListExpensesBetween(gctx, familyID, monthStart, monthEnd)
		return err
	})
	g.Go(func() (err error) {
		members, err = s.store.ListMembers(gctx, familyID)
		if err != nil {
			return err
		}
		user, err = s.store.GetMember(gctx, familyID, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build context snapshot: %w", err)
	}

	snap := &Snapshot{
		Language: lang,
		UserName: user.Name,
		UserRole: user.Role,
	}

	memberNames := make(map[string]string, len(members))
	for _, m := range members {
		memberNames[m.ID] = m.Name
		snap.FamilyMembers = append(snap.FamilyMembers, MemberSummary{ID: m.ID, Name: m.Name, Role: m.Role})
	}

	todayEnd := todayStart.Add(24 * time.Hour)
	for _, ev := range events {
		sum := EventSummary{Title: ev.Title, StartsAt: ev.StartsAt, EndsAt: ev.EndsAt, Category: ev.Category}
		if ev.StartsAt.Before(todayEnd) {
			snap.TodayEvents = append(snap.TodayEvents, sum)
		} else if len(snap.UpcomingEvents) < upcomingEventLimit {
			snap.UpcomingEvents = append(snap.UpcomingEvents, sum)
		}
	}

	for _, task := range tasks {
		if task.Completed {
			continue
		}
		sum := TaskSummary{
			Title:    task.Title,
			DueAt:    task.DueAt,
			Priority: task.Priority,
			Assignee: memberNames[task.AssigneeID],
		}
		if task.DueAt != nil && task.DueAt.Before(now) {
			snap.OverdueTasks = append(snap.OverdueTasks, sum)
		} else {
			snap.PendingTasks = append(snap.PendingTasks, sum)
		}
	}

	for _, item := range shopping {
		if item.Purchased {
			continue
		}
		if len(snap.ShoppingList) >= shoppingListLimit {
			break
		}
		snap.ShoppingList = append(snap.ShoppingList, ShoppingSummary{Name: item.Name, Quantity: item.Quantity})
	}

	budget, err := sumExpenses(expenses)
	if err != nil {
		return nil, fmt.Errorf("failed to build context snapshot: %w", err)
	}
	snap.MonthlyBudget = budget

	return snap, nil
}

// sumExpenses totals decimal-string amounts with exact rational
// arithmetic. Binary floats never touch money.
func sumExpenses(expenses []domain.Expense) (Budget, error) {
	total := new(big.Rat)
	byCategory := make(map[string]*big.Rat)

	for _, exp := range expenses {
		amount, ok := new(big.Rat).SetString(exp.Amount)
		if !ok {
			return Budget{}, fmt.Errorf("invalid expense amount %q", exp.Amount)
		}
		total.Add(total, amount)

		category := exp.Category
		if category == "" {
			category = "other"
		}
		if byCategory[category] == nil {
			byCategory[category] = new(big.Rat)
		}
		byCategory[category].Add(byCategory[category], amount)
	}

	budget := Budget{Total: formatAmount(total), ByCategory: make(map[string]string, len(byCategory))}
	for category, sum := range byCategory {
		budget.ByCategory[category] = formatAmount(sum)
	}
	return budget, nil
}

func formatAmount(r *big.Rat) string {
	return r.FloatString(2)
}
