package cmd

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/jaswdr/faker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"orderdesk/database"
	"orderdesk/lifecycle"
	"orderdesk/models"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the store with demo orders driven through the lifecycle",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().Int("orders", 300, "Number of orders to create")
	seedCmd.Flags().Int("days", 60, "Spread orders over this many past days")
	seedCmd.Flags().Int("customers", 40, "Number of distinct customers")
	seedCmd.Flags().Int64("seed", 42, "Random seed")
}

var seedMenu = []models.OrderItem{
	{ProductID: "burger-classic", Name: "Classic Burger", Category: "Burgers", UnitPrice: 9.5},
	{ProductID: "burger-veggie", Name: "Veggie Burger", Category: "Burgers", UnitPrice: 8.75},
	{ProductID: "pizza-margherita", Name: "Margherita", Category: "Pizza", UnitPrice: 11},
	{ProductID: "pizza-diavola", Name: "Diavola", Category: "Pizza", UnitPrice: 12.5},
	{ProductID: "salad-caesar", Name: "Caesar Salad", Category: "Salads", UnitPrice: 7.25},
	{ProductID: "fries", Name: "Fries", Category: "Sides", UnitPrice: 3.5},
	{ProductID: "lemonade", Name: "Lemonade", Category: "Drinks", UnitPrice: 2.75},
	{ProductID: "brownie", Name: "Brownie", Category: "Desserts", UnitPrice: 4},
}

func runSeed(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("orders")
	days, _ := cmd.Flags().GetInt("days")
	customers, _ := cmd.Flags().GetInt("customers")
	seed, _ := cmd.Flags().GetInt64("seed")
	if n <= 0 || days <= 0 || customers <= 0 {
		return fmt.Errorf("orders, days and customers must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, closeStore, err := database.OpenStore(ctx, cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer closeStore()

	rng := rand.New(rand.NewSource(seed))
	fake := faker.NewWithSeed(rand.NewSource(seed))
	var at time.Time
	ctrl := lifecycle.NewController(st, nil,
		lifecycle.WithDeliveryFee(cfg.DeliveryFee),
		lifecycle.WithClock(func() time.Time { return at }),
	)

	start := time.Now().UTC().AddDate(0, 0, -days)
	cashier := models.Actor{ID: "seed-cashier", Role: models.RoleCashier}
	bar := progressbar.Default(int64(n), "seeding orders")
	counts := map[models.Status]int{}

	for i := 0; i < n; i++ {
		at = start.Add(time.Duration(rng.Int63n(int64(days) * int64(24*time.Hour))))
		customer := models.Actor{ID: fmt.Sprintf("customer-%03d", rng.Intn(customers)+1), Role: models.RoleCustomer}

		order, err := ctrl.PlaceOrder(ctx, cashier, models.PlaceOrderRequest{
			UserID: customer.ID,
			Items:  seedItems(rng),
			Address: models.JSONB{
				"name":   fake.Person().Name(),
				"street": fake.Address().StreetAddress(),
				"city":   fake.Address().City(),
			},
		})
		if err != nil {
			return err
		}
		final, err := seedLifecycle(ctx, ctrl, rng, order, customer)
		if err != nil {
			return fmt.Errorf("order %s: %w", order.ID, err)
		}
		counts[final]++
		bar.Add(1)
	}

	for _, s := range models.AllStatuses {
		log.Printf("[SEED] %-16s %d", s, counts[s])
	}
	return nil
}

func seedItems(rng *rand.Rand) []models.OrderItem {
	lines := rng.Intn(3) + 1
	items := make([]models.OrderItem, 0, lines)
	for _, idx := range rng.Perm(len(seedMenu))[:lines] {
		item := seedMenu[idx]
		item.Quantity = rng.Intn(3) + 1
		items = append(items, item)
	}
	return items
}

// seedLifecycle walks an order along a random but legal path and returns
// the status it ends in.
func seedLifecycle(ctx context.Context, ctrl *lifecycle.Controller, rng *rand.Rand, order *models.Order, customer models.Actor) (models.Status, error) {
	roll := rng.Float64()
	if roll < 0.08 {
		o, err := ctrl.VerifyPayment(ctx, order.ID, false)
		if err != nil {
			return "", err
		}
		return o.Status, nil
	}
	if _, err := ctrl.VerifyPayment(ctx, order.ID, true); err != nil {
		return "", err
	}

	path := []struct {
		actor  models.Actor
		target models.Status
	}{
		{models.Actor{ID: "seed-kitchen", Role: models.RoleKitchen}, models.StatusOutForDelivery},
		{models.Actor{ID: "seed-driver", Role: models.RoleDelivery}, models.StatusDelivered},
		{customer, models.StatusCompleted},
	}
	// most orders finish; the rest stop somewhere along the way
	steps := len(path)
	if roll > 0.85 {
		steps = rng.Intn(len(path))
	}
	status := order.Status
	for _, step := range path[:steps] {
		o, err := ctrl.Transition(ctx, order.ID, step.actor, step.target)
		if err != nil {
			return "", err
		}
		status = o.Status
	}
	return status, nil
}
