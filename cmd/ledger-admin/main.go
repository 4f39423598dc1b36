package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"payout-ledger/config"
	"payout-ledger/internal/auth"
	"payout-ledger/internal/database"
	"payout-ledger/internal/events"
	"payout-ledger/internal/ledger"
)

func main() {
	fmt.Println("========================================")
	fmt.Println(" Payout Ledger Administration Tool")
	fmt.Println("========================================")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	service := ledger.NewService(repo, events.NewEventBus(), logger, cfg.LedgerConfig.MaxPayoutRetries)
	engine := ledger.NewDistributionEngine(repo, events.NewEventBus(), logger)

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Create staff user")
		fmt.Println("  2. Distribute received payments for an opportunity")
		fmt.Println("  3. Promote due payouts to scheduled")
		fmt.Println("  4. Show member payout summary")
		fmt.Println("  5. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			createStaffUser(reader, repo)
		case "2":
			distributeOpportunity(reader, engine)
		case "3":
			promoteDuePayouts(reader, service, cfg.LedgerConfig.SchedulerBatchSize)
		case "4":
			showMemberSummary(reader, service)
		case "5":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

func createStaffUser(reader *bufio.Reader, repo *database.Repository) {
	fmt.Println("\n--- Create Staff User ---")
	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)

	fmt.Print("Admin? (y/n): ")
	admin, _ := reader.ReadString('\n')
	isAdmin := strings.TrimSpace(strings.ToLower(admin)) == "y"

	if email == "" || password == "" {
		fmt.Println("Email and password are required")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Printf("Failed to hash password: %v\n", err)
		return
	}

	role := "staff"
	if isAdmin {
		role = "admin"
	}
	user := &database.StaffUser{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsAdmin:      isAdmin,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.CreateStaffUser(ctx, user); err != nil {
		fmt.Printf("Failed to create staff user: %v\n", err)
		return
	}
	fmt.Printf("Created %s user %s\n", role, email)
}

func distributeOpportunity(reader *bufio.Reader, engine *ledger.DistributionEngine) {
	fmt.Println("\n--- Distribute Received Payments ---")
	fmt.Print("Opportunity ID: ")
	oppID, _ := reader.ReadString('\n')
	oppID = strings.TrimSpace(oppID)
	if oppID == "" {
		fmt.Println("Opportunity ID is required")
		return
	}

	fmt.Print("Accept splits under 100%? (y/n): ")
	partial, _ := reader.ReadString('\n')
	acceptPartial := strings.TrimSpace(strings.ToLower(partial)) == "y"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, failures, err := engine.AutoDistribute(ctx, oppID, acceptPartial)
	if err != nil {
		fmt.Printf("Distribution failed: %v\n", err)
		return
	}

	fmt.Printf("\nCreated %d payout records\n", len(records))
	for _, rec := range records {
		fmt.Printf("  %-20s %10s due %s\n", rec.ClientID, rec.Amount, rec.PayoutDate.Format("2006-01-02"))
	}
	for _, failure := range failures {
		fmt.Printf("  skipped: %v\n", failure)
	}
}

func promoteDuePayouts(reader *bufio.Reader, service *ledger.Service, defaultBatch int) {
	fmt.Println("\n--- Promote Due Payouts ---")
	fmt.Printf("Batch size (default %d): ", defaultBatch)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	batch := defaultBatch
	if input != "" {
		if n, err := strconv.Atoi(input); err == nil && n > 0 {
			batch = n
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	marked, err := service.MarkDuePayouts(ctx, time.Now(), batch)
	if err != nil {
		fmt.Printf("Promotion failed: %v\n", err)
		return
	}
	fmt.Printf("Promoted %d payouts to SCHEDULED\n", marked)
}

func showMemberSummary(reader *bufio.Reader, service *ledger.Service) {
	fmt.Println("\n--- Member Payout Summary ---")
	fmt.Print("Client ID: ")
	clientID, _ := reader.ReadString('\n')
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		fmt.Println("Client ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payouts, err := service.ListPayoutsByMember(ctx, clientID)
	if err != nil {
		fmt.Printf("Lookup failed: %v\n", err)
		return
	}

	var earned, pending int64
	fmt.Println("\n========================================")
	for _, rec := range payouts {
		if rec.Superseded {
			continue
		}
		fmt.Printf("  %-12s %10s  %s  due %s\n",
			rec.Status, rec.Amount, rec.OpportunityID, rec.PayoutDate.Format("2006-01-02"))
		switch rec.Status {
		case ledger.PayoutPaid:
			earned += int64(rec.Amount)
		case ledger.PayoutPending, ledger.PayoutScheduled, ledger.PayoutProcessing:
			pending += int64(rec.Amount)
		}
	}
	fmt.Println("----------------------------------------")
	fmt.Printf("  Total earned:  %d cents\n", earned)
	fmt.Printf("  Total pending: %d cents\n", pending)
	fmt.Println("========================================")
}
