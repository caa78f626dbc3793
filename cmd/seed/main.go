package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/repository"
	"github.com/JRCMora/jms-api/internal/service"
	"github.com/JRCMora/jms-api/pkg/config"
	"github.com/JRCMora/jms-api/pkg/database"
	"github.com/JRCMora/jms-api/pkg/logger"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type fixtureUser struct {
	Email    string `yaml:"email"`
	FullName string `yaml:"fullName"`
	Role     string `yaml:"role"`
	Inactive bool   `yaml:"inactive"`
}

type fixtures struct {
	Users   []fixtureUser             `yaml:"users"`
	Rubrics []dto.CreateRubricRequest `yaml:"rubrics"`
}

func main() {
	var (
		fixturesPath string
		issueTokens  bool
		skipRubrics  bool
	)
	flag.StringVar(&fixturesPath, "fixtures", "", "YAML fixtures file (defaults to the embedded development set)")
	flag.BoolVar(&issueTokens, "tokens", true, "Print a bearer token for every seeded user")
	flag.BoolVar(&skipRubrics, "skip-rubrics", false, "Only seed users")
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

	data, err := loadFixtures(fixturesPath)
	if err != nil {
		logr.Fatal("fixtures unreadable", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("schema bootstrap failed", zap.Error(err))
	}

	users := repository.NewUserRepository(db)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Expiration: cfg.JWT.Expiration})

	var editor *models.User
	for _, fu := range data.Users {
		user, err := fu.model()
		if err != nil {
			logr.Fatal("invalid fixture user", zap.String("email", fu.Email), zap.Error(err))
		}
		if err := users.Upsert(ctx, user); err != nil {
			logr.Fatal("seed user failed", zap.String("email", user.Email), zap.Error(err))
		}
		logr.Info("user seeded", zap.String("id", user.ID), zap.String("email", user.Email), zap.String("role", string(user.Role)))
		if editor == nil && user.Role.IsEditor() {
			editor = user
		}
		if issueTokens {
			token, expiresAt, err := tokens.Issue(user)
			if err != nil {
				logr.Fatal("token issue failed", zap.Error(err))
			}
			fmt.Printf("%-32s %-10s expires %s\n  %s\n", user.Email, user.Role, expiresAt.Format(time.RFC3339), token)
		}
	}

	if skipRubrics || len(data.Rubrics) == 0 {
		return
	}
	if editor == nil {
		logr.Fatal("rubric fixtures need at least one editor user")
	}
	rubrics := service.NewRubricService(repository.NewRubricRepository(db), nil, logr)
	existing, err := rubrics.List(ctx)
	if err != nil {
		logr.Fatal("list rubrics failed", zap.Error(err))
	}
	actor := &models.JWTClaims{UserID: editor.ID, Role: editor.Role}
	for _, req := range data.Rubrics {
		if hasRubric(existing, req.Title) {
			continue
		}
		rubric, err := rubrics.Create(ctx, req, actor)
		if err != nil {
			logr.Fatal("seed rubric failed", zap.String("title", req.Title), zap.Error(err))
		}
		logr.Info("rubric seeded", zap.String("id", rubric.ID), zap.String("title", rubric.Title))
	}
}

func loadFixtures(path string) (*fixtures, error) {
	raw := defaultFixtures
	if path != "" {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	var data fixtures
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &data, nil
}

func (f fixtureUser) model() (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(f.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	role := models.UserRole(strings.ToUpper(strings.TrimSpace(f.Role)))
	switch role {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleReviewer, models.RoleAuthor:
	default:
		return nil, fmt.Errorf("unknown role %q", f.Role)
	}
	return &models.User{Email: email, FullName: strings.TrimSpace(f.FullName), Role: role, Active: !f.Inactive}, nil
}

func hasRubric(existing *dto.RubricListResponse, title string) bool {
	for _, item := range existing.Items {
		if strings.EqualFold(item.Title, title) {
			return true
		}
	}
	return false
}
