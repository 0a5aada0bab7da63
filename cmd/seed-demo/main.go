package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/schoolhub/bulkops-backend/internal/config"
	"github.com/schoolhub/bulkops-backend/internal/database"
	"github.com/schoolhub/bulkops-backend/internal/logger"
	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/repository"
)

var firstNames = []string{
	"Amara", "Ben", "Chidi", "Dana", "Elif", "Farid", "Grace", "Hiro", "Ines", "Jonas",
	"Kavya", "Liam", "Mei", "Nadia", "Omar", "Priya", "Quinn", "Rosa", "Sven", "Tara",
}

var lastNames = []string{
	"Okafor", "Schmidt", "Tanaka", "Silva", "Novak", "Haddad", "Kowalski", "Mensah", "Larsen", "Ortiz",
}

func main() {
	var (
		code     string
		year     string
		perGrade int
		csvPath  string
	)
	flag.StringVar(&code, "school-code", "DEMO001", "School code of the demo tenant")
	flag.StringVar(&year, "year", "2024-25", "Academic year of the seeded classes")
	flag.IntVar(&perGrade, "students", 60, "Students to seed per grade")
	flag.StringVar(&csvPath, "enrollment-csv", "", "Also write an enrollment upload for grade 9 to this path")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, 2, "seed", log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	classRepo := repository.NewClassRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)

	fmt.Printf("=== Seeding demo tenant %s ===\n", code)

	// ─── Tenant ────────────────────────────────────────────────────────
	name := "Demo Academy"
	tenant := model.NewTenantFromRow(&model.TenantRow{SchoolCode: code, SchoolName: &name})
	if err := tenantRepo.InsertOne(ctx, tenant); err != nil {
		log.Fatal().Err(err).Msg("Failed to create tenant (does the school code already exist?)")
	}
	fmt.Printf("Created tenant %s\n", tenant.ID)

	// ─── Classes: grades 9 and 10, sections A and B ───────────────────
	var classes []model.Class
	for _, grade := range []int{9, 10} {
		for _, section := range []string{"A", "B"} {
			classes = append(classes, model.Class{
				ID:              uuid.New(),
				TenantID:        tenant.ID,
				ClassName:       fmt.Sprintf("Grade %d", grade),
				GradeLevel:      grade,
				Section:         section,
				AcademicYear:    year,
				MaximumStudents: 30,
			})
		}
	}
	n, err := classRepo.InsertMany(ctx, classes)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create classes")
	}
	fmt.Printf("Created %d classes\n", n)

	// ─── Students ──────────────────────────────────────────────────────
	var students []model.Student
	for _, grade := range []int{9, 10} {
		for i := 0; i < perGrade; i++ {
			students = append(students, model.Student{
				ID:           uuid.New(),
				TenantID:     tenant.ID,
				StudentCode:  fmt.Sprintf("%s-%02d-%04d", code, grade, i+1),
				FirstName:    firstNames[i%len(firstNames)],
				LastName:     lastNames[(i/len(firstNames)+grade)%len(lastNames)],
				GradeLevel:   grade,
				AcademicYear: year,
				Status:       "active",
			})
		}
	}
	n, err = studentRepo.InsertMany(ctx, students)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create students")
	}
	fmt.Printf("Created %d students\n", n)

	if csvPath != "" {
		if err := writeEnrollmentCSV(csvPath, students, classes[0], year); err != nil {
			log.Fatal().Err(err).Msg("Failed to write enrollment CSV")
		}
		fmt.Printf("Wrote grade 9 enrollment upload to %s\n", csvPath)
	}

	fmt.Printf("\nDone. Tenant ID: %s\n", tenant.ID)
}

// writeEnrollmentCSV targets every grade 9 student at one class, so the
// upload deliberately overflows it and exercises capacity rejections.
func writeEnrollmentCSV(path string, students []model.Student, class model.Class, year string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"student_id", "class_id", "academic_year"}); err != nil {
		return err
	}
	for _, s := range students {
		if s.GradeLevel != class.GradeLevel {
			continue
		}
		if err := w.Write([]string{s.ID.String(), class.ID.String(), year}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
