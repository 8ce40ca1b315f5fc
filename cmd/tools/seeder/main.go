package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/noah-isme/backend-clinica/internal/checkout"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	clinicID := os.Getenv("SEED_CLINIC_ID")
	if clinicID == "" {
		clinicID = "clinic-demo"
	}
	log.Printf("Seeding clinic %s", clinicID)

	seedProcedures(db, clinicID)
	seedPriceTables(db, clinicID)
	seedProfessionals(db, clinicID)

	log.Println("Seeding completed successfully!")
}

func seedProcedures(db *sql.DB, clinicID string) {
	procedures := []struct {
		ID            string
		Name          string
		Category      string
		BasePrice     int64
		EstimatedCost int64
	}{
		{"proc-limpeza", "Limpeza e Profilaxia", "Prevenção", 18000, 5400},
		{"proc-restauracao", "Restauração em Resina", "Dentística", 25000, 7500},
		{"proc-clareamento", "Clareamento a Laser", "Estética", 120000, 36000},
		{"proc-canal", "Tratamento de Canal", "Endodontia", 95000, 32000},
		{"proc-extracao", "Extração de Siso", "Cirurgia", 45000, 13500},
		{"proc-implante", "Implante Unitário", "Implantodontia", 350000, 140000},
		{"proc-aparelho", "Manutenção de Aparelho", "Ortodontia", 15000, 4500},
		{"proc-botox", "Toxina Botulínica", "Harmonização", 80000, 28000},
	}

	for _, p := range procedures {
		_, err := db.Exec(`
			INSERT INTO procedures (id, clinic_id, name, category, base_price, estimated_cost, active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				base_price = EXCLUDED.base_price,
				estimated_cost = EXCLUDED.estimated_cost,
				active = TRUE`,
			p.ID, clinicID, p.Name, p.Category, p.BasePrice, p.EstimatedCost,
		)
		if err != nil {
			log.Fatalf("Failed to seed procedure %s: %v", p.ID, err)
		}
	}
	log.Printf("Seeded %d procedures", len(procedures))
}

func seedPriceTables(db *sql.DB, clinicID string) {
	tables := []struct {
		ID      string
		Name    string
		Default bool
	}{
		{"pt-particular", "Particular", true},
		{"pt-convenio", "Convênio", false},
		{"pt-parceria", "Parceria Empresa", false},
	}

	for _, t := range tables {
		_, err := db.Exec(`
			INSERT INTO price_tables (id, clinic_id, name, is_default)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				is_default = EXCLUDED.is_default`,
			t.ID, clinicID, t.Name, t.Default,
		)
		if err != nil {
			log.Fatalf("Failed to seed price table %s: %v", t.ID, err)
		}
	}
	log.Printf("Seeded %d price tables", len(tables))
}

func seedProfessionals(db *sql.DB, clinicID string) {
	professionals := []struct {
		ID   string
		Name string
		Role string
		Pin  string
	}{
		{"prof-ana", "Dra. Ana Souza", "dentist", "1234"},
		{"prof-carlos", "Dr. Carlos Lima", "dentist", "4321"},
		{"prof-julia", "Júlia Prado", "manager", "9000"},
	}

	for _, pro := range professionals {
		hash, err := checkout.HashPin(pro.Pin)
		if err != nil {
			log.Fatalf("Failed to hash PIN for %s: %v", pro.ID, err)
		}
		_, err = db.Exec(`
			INSERT INTO professionals (id, clinic_id, name, role, pin_hash, active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				role = EXCLUDED.role,
				pin_hash = EXCLUDED.pin_hash,
				active = TRUE`,
			pro.ID, clinicID, pro.Name, pro.Role, hash,
		)
		if err != nil {
			log.Fatalf("Failed to seed professional %s: %v", pro.ID, err)
		}
	}
	log.Printf("Seeded %d professionals", len(professionals))
}
