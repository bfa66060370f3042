package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/huangang/condovote/internal/config"
	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/internal/utils"
	"gopkg.in/yaml.v3"
)

// unitsFile is the roster a syndic keeps for one condominium:
//
//	tenant: condo-a
//	units:
//	  - identifier: A-101
//	    owner_name: Maria Souza
//	    voting_weight: 1.25
type unitsFile struct {
	Tenant string    `yaml:"tenant"`
	Units  []unitRow `yaml:"units"`
}

type unitRow struct {
	Identifier   string  `yaml:"identifier"`
	OwnerName    string  `yaml:"owner_name"`
	VotingWeight float64 `yaml:"voting_weight"`
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	unitsPath := flag.String("units", "units.yaml", "roster of units to create")
	syndic := flag.String("syndic", "syndic", "username embedded in the printed staff token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	data, err := os.ReadFile(*unitsPath)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *unitsPath, err)
	}
	var roster unitsFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		log.Fatalf("Failed to parse %s: %v", *unitsPath, err)
	}
	if roster.Tenant == "" {
		log.Fatalf("%s: tenant is required", *unitsPath)
	}

	if err := models.InitDB(&cfg.Database); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	fmt.Println("Connected to database successfully!")
	fmt.Println("")

	engine := services.NewEngine(models.GetDB(), services.Options{})
	ctx := context.Background()

	fmt.Printf("%-5s %-12s %-30s %-8s\n", "ID", "Unit", "Owner", "Weight")
	fmt.Println("---------------------------------------------------------")
	created, skipped := 0, 0
	for _, row := range roster.Units {
		req := &services.CreateUnitRequest{
			Identifier:   row.Identifier,
			OwnerName:    row.OwnerName,
			VotingWeight: row.VotingWeight,
		}
		unit, err := engine.Units.Create(ctx, roster.Tenant, req)
		if errors.Is(err, services.ErrUnitExists) {
			skipped++
			continue
		}
		if err != nil {
			log.Fatalf("Failed to create unit %q: %v", req.Identifier, err)
		}
		created++
		fmt.Printf("%-5d %-12s %-30s %-8.4f\n", unit.ID, unit.Identifier, unit.OwnerName, unit.VotingWeight)
	}
	fmt.Println("")
	fmt.Printf("Created %d units, %d already present\n", created, skipped)

	utils.SetJWTSecret(cfg.JWT.Secret)
	token, err := utils.GenerateToken(1, *syndic, "syndic", roster.Tenant, cfg.JWT.ExpireHour)
	if err != nil {
		log.Fatalf("Failed to sign staff token: %v", err)
	}
	fmt.Println("")
	fmt.Printf("Staff token for %s (%s):\n%s\n", *syndic, roster.Tenant, token)
}
