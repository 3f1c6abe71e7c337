package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/noah-isme/level-portal-api/internal/dto"
	"github.com/noah-isme/level-portal-api/internal/models"
	"github.com/noah-isme/level-portal-api/internal/repository"
	"github.com/noah-isme/level-portal-api/internal/service"
	"github.com/noah-isme/level-portal-api/pkg/config"
	"github.com/noah-isme/level-portal-api/pkg/database"
	"github.com/noah-isme/level-portal-api/pkg/logger"
)

const demoPassword = "student123"

func main() {
	var (
		email string
		name  string
		demo  bool
	)
	flag.StringVar(&email, "email", "", "Admin email (prompted when empty)")
	flag.StringVar(&name, "name", "Administrator", "Admin display name")
	flag.BoolVar(&demo, "demo", false, "Also create demo students at levels 1-3")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unreachable", zap.Error(err))
	}
	defer db.Close()

	reader := bufio.NewReader(os.Stdin)
	if email == "" {
		fmt.Print("Admin email: ")
		line, _ := reader.ReadString('\n')
		email = line
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		logr.Fatal("admin email is required")
	}

	password, err := readPassword(reader)
	if err != nil {
		logr.Fatal("failed to read password", zap.Error(err))
	}
	if len(password) < 6 {
		logr.Fatal("password must be at least 6 characters")
	}

	admins := repository.NewAdminRepository(db)
	if _, err := admins.FindByEmail(ctx, email); err == nil {
		logr.Info("admin already exists", zap.String("email", email))
	} else if !errors.Is(err, sql.ErrNoRows) {
		logr.Fatal("failed to look up admin", zap.Error(err))
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cfg.Security.BcryptCost)
		if err != nil {
			logr.Fatal("failed to hash password", zap.Error(err))
		}
		hashed := string(hash)
		admin := &models.Admin{Email: email, Name: strings.TrimSpace(name), PasswordHash: &hashed}
		if err := admins.Create(ctx, admin); err != nil {
			logr.Fatal("failed to create admin", zap.Error(err))
		}
		logr.Info("admin created", zap.String("id", admin.ID), zap.String("email", admin.Email))
	}

	if demo {
		seedDemoStudents(ctx, logr, service.NewStudentService(repository.NewStudentRepository(db), repository.NewActivityRepository(db), nil, nil, logr, cfg.Security.BcryptCost))
	}
}

// readPassword hides input on a terminal and falls back to a plain line for pipes.
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print("Admin password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		return string(raw), err
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func seedDemoStudents(ctx context.Context, logr *zap.Logger, students *service.StudentService) {
	for level := 1; level <= 3; level++ {
		lvl := level
		req := dto.CreateStudentRequest{
			SignupRequest: dto.SignupRequest{
				Name:     fmt.Sprintf("Demo Student %d", level),
				Email:    fmt.Sprintf("student%d@example.com", level),
				Password: demoPassword,
			},
			Level: &lvl,
		}
		student, err := students.Create(ctx, req)
		if err != nil {
			logr.Warn("demo student skipped", zap.String("email", req.Email), zap.Error(err))
			continue
		}
		logr.Info("demo student created", zap.String("email", student.Email), zap.Int("level", student.Level))
	}
}
