package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"clinic_notification_engine/internal/domain/clinic"
	idb "clinic_notification_engine/internal/infra/database"
	"clinic_notification_engine/internal/infra/logger"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// seed fills clinic_records with demo data for the configured device user.
func main() {
	patients := flag.Int("patients", 40, "patients to create")
	days := flag.Int("days", 14, "days of history and future appointments around today")
	flag.Parse()

	_ = godotenv.Load()
	log := logger.Component("seed")

	dsn := os.Getenv("DATABASE_URL")
	userID := os.Getenv("CLINIC_USER_ID")
	if dsn == "" || userID == "" {
		log.Fatal("DATABASE_URL and CLINIC_USER_ID are required")
	}

	db, err := idb.NewPostgresConnection(dsn)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := idb.EnsureSchema(ctx, db); err != nil {
		log.WithError(err).Fatal("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	owner := &clinic.Staff{ID: userID, DisplayName: "Dr. " + gofakeit.LastName(), Role: clinic.RoleOwner, IsActive: true}
	if tg, err := strconv.ParseInt(os.Getenv("SEED_TELEGRAM_ID"), 10, 64); err == nil {
		owner.TelegramID = sql.NullInt64{Int64: tg, Valid: true}
	}
	if err := idb.NewPostgresStaffRepository(db).Upsert(ctx, owner); err != nil {
		log.WithError(err).Fatal("seed owner")
	}

	s := seeder{store: idb.NewPostgresRecordStore(db), userID: userID, days: *days, now: time.Now()}
	counts := map[string]int{}
	for i := 0; i < *patients; i++ {
		n, err := s.patient(ctx)
		if err != nil {
			log.WithError(err).Fatal("seed patients")
		}
		counts[clinic.CollectionPatients]++
		counts[clinic.CollectionAppointments] += n
	}
	for collection, gen := range map[string]func() clinic.Record{
		clinic.CollectionSales:                s.sale,
		clinic.CollectionSubscriptionPayments: s.subscriptionPayment,
		clinic.CollectionCourseEnrollments:    s.enrollment,
	} {
		for i := 0; i < *patients/2; i++ {
			if err := s.store.Upsert(ctx, collection, uuid.NewString(), gen()); err != nil {
				log.WithError(err).Fatalf("seed %s", collection)
			}
			counts[collection]++
		}
	}

	for collection, n := range counts {
		log.WithField("collection", collection).Infof("Seeded %d records", n)
	}
}

type seeder struct {
	store  *idb.PostgresRecordStore
	userID string
	days   int
	now    time.Time
}

func (s seeder) when() time.Time {
	start := s.now.AddDate(0, 0, -s.days)
	return gofakeit.DateRange(start, s.now.AddDate(0, 0, s.days)).Truncate(30 * time.Minute)
}

func (s seeder) past() time.Time {
	return gofakeit.DateRange(s.now.AddDate(0, 0, -s.days), s.now)
}

func money(lo, hi float64) string {
	return decimal.NewFromFloat(gofakeit.Price(lo, hi)).StringFixed(2)
}

// patient writes one patient with procedures and a few appointments. It
// returns the number of appointments written.
func (s seeder) patient(ctx context.Context) (int, error) {
	id := uuid.NewString()
	name := gofakeit.Name()
	birth := gofakeit.DateRange(s.now.AddDate(-80, 0, 0), s.now.AddDate(-18, 0, 0))

	procedures := make([]any, 0, 3)
	for i := 0; i < gofakeit.Number(0, 3); i++ {
		proc := map[string]any{
			"id":     uuid.NewString(),
			"name":   gofakeit.RandomString([]string{"Cleaning", "Consultation", "Whitening", "Filling"}),
			"status": gofakeit.RandomString([]string{"completed", "completed", "scheduled", "cancelled"}),
			"value":  money(80, 900),
			"date":   s.past().Format(time.RFC3339),
		}
		if gofakeit.Bool() {
			payments := make([]any, 0, 3)
			for j := 0; j < gofakeit.Number(2, 3); j++ {
				payments = append(payments, map[string]any{
					"amount": money(40, 300),
					"paid":   gofakeit.Bool(),
					"paidAt": s.past().Format(time.RFC3339),
				})
			}
			proc["payments"] = payments
		}
		procedures = append(procedures, proc)
	}

	err := s.store.Upsert(ctx, clinic.CollectionPatients, id, clinic.Record{
		"userId":     s.userID,
		"name":       name,
		"email":      gofakeit.Email(),
		"birthDate":  birth.Format("2006-01-02"),
		"procedures": procedures,
	})
	if err != nil {
		return 0, err
	}

	n := gofakeit.Number(0, 3)
	for i := 0; i < n; i++ {
		start := s.when()
		err := s.store.Upsert(ctx, clinic.CollectionAppointments, uuid.NewString(), clinic.Record{
			"userId":      s.userID,
			"patientId":   id,
			"patientName": name,
			"startTime":   start.Format(time.RFC3339),
			"endTime":     start.Add(time.Duration(gofakeit.Number(1, 3)) * 30 * time.Minute).Format(time.RFC3339),
			"status":      gofakeit.RandomString([]string{"scheduled", "confirmed", "completed", "cancelled"}),
			"isPersonal":  gofakeit.Number(0, 9) == 0,
		})
		if err != nil {
			return i, fmt.Errorf("appointment for %s: %w", id, err)
		}
	}
	return n, nil
}

func (s seeder) sale() clinic.Record {
	return clinic.Record{
		"userId":   s.userID,
		"product":  gofakeit.ProductName(),
		"total":    money(10, 250),
		"status":   gofakeit.RandomString([]string{"paid", "paid", "pending"}),
		"saleDate": s.past().Format(time.RFC3339),
	}
}

func (s seeder) subscriptionPayment() clinic.Record {
	return clinic.Record{
		"userId":      s.userID,
		"plan":        gofakeit.RandomString([]string{"monthly", "quarterly"}),
		"amount":      money(50, 400),
		"status":      gofakeit.RandomString([]string{"paid", "PAID", "overdue"}),
		"paymentDate": s.past().Format(time.RFC3339),
	}
}

func (s seeder) enrollment() clinic.Record {
	return clinic.Record{
		"userId":         s.userID,
		"course":         gofakeit.RandomString([]string{"Posture basics", "Sleep hygiene", "Prenatal care"}),
		"amountPaid":     money(0, 600),
		"enrollmentDate": s.past().Format(time.RFC3339),
	}
}
