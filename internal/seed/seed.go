// Package seed loads reference and demo data for local environments.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/service"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

//go:embed challenges.yaml
var defaultChallenges []byte

// DefaultChallenges returns the embedded challenge catalogue
func DefaultChallenges() []byte {
	return defaultChallenges
}

type challengeFile struct {
	Challenges []challengeEntry `yaml:"challenges"`
}

type challengeEntry struct {
	Code         string     `yaml:"code"`
	Title        string     `yaml:"title"`
	Description  string     `yaml:"description"`
	Action       string     `yaml:"action"`
	Target       int        `yaml:"target"`
	RewardPoints int        `yaml:"reward_points"`
	Period       string     `yaml:"period"`
	StartsAt     *time.Time `yaml:"starts_at"`
	EndsAt       *time.Time `yaml:"ends_at"`
	Inactive     bool       `yaml:"inactive"`
}

var validActions = map[string]bool{
	models.ActionSubmitVideo:  true,
	models.ActionRecipeSaved:  true,
	models.ActionRecipeCooked: true,
	models.ActionRouletteSpin: true,
}

var validPeriods = map[string]bool{
	models.PeriodOnce:   true,
	models.PeriodDaily:  true,
	models.PeriodWeekly: true,
}

// ParseChallenges decodes and validates a challenge catalogue
func ParseChallenges(data []byte) ([]models.Challenge, error) {
	var file challengeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse challenges: %w", err)
	}

	seen := make(map[string]bool, len(file.Challenges))
	out := make([]models.Challenge, 0, len(file.Challenges))
	var errs []error
	for i, e := range file.Challenges {
		switch {
		case e.Code == "":
			errs = append(errs, fmt.Errorf("challenge %d: code is required", i))
			continue
		case seen[e.Code]:
			errs = append(errs, fmt.Errorf("challenge %q: duplicate code", e.Code))
			continue
		}
		seen[e.Code] = true
		if e.Title == "" {
			errs = append(errs, fmt.Errorf("challenge %q: title is required", e.Code))
		}
		if !validActions[e.Action] {
			errs = append(errs, fmt.Errorf("challenge %q: unknown action %q", e.Code, e.Action))
		}
		if !validPeriods[e.Period] {
			errs = append(errs, fmt.Errorf("challenge %q: unknown period %q", e.Code, e.Period))
		}
		if e.Target <= 0 || e.RewardPoints < 0 {
			errs = append(errs, fmt.Errorf("challenge %q: target must be positive and reward non-negative", e.Code))
		}
		if e.StartsAt != nil && e.EndsAt != nil && !e.EndsAt.After(*e.StartsAt) {
			errs = append(errs, fmt.Errorf("challenge %q: ends_at must be after starts_at", e.Code))
		}
		out = append(out, models.Challenge{
			Code:         e.Code,
			Title:        e.Title,
			Description:  e.Description,
			Action:       e.Action,
			Target:       e.Target,
			RewardPoints: e.RewardPoints,
			Period:       e.Period,
			StartsAt:     e.StartsAt,
			EndsAt:       e.EndsAt,
			Active:       !e.Inactive,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Challenges upserts the catalogue in data
func Challenges(ctx context.Context, gamification *service.GamificationService, data []byte) (int, error) {
	challenges, err := ParseChallenges(data)
	if err != nil {
		return 0, err
	}
	if err := gamification.UpsertChallenges(ctx, challenges); err != nil {
		return 0, err
	}
	return len(challenges), nil
}

// DemoUser is a local account created by Users
type DemoUser struct {
	Email       string
	DisplayName string
}

// DemoPassword is shared by every demo account
const DemoPassword = "reelkitchen-demo"

var demoUsers = []DemoUser{
	{Email: "ada@example.com", DisplayName: "Ada"},
	{Email: "grace@example.com", DisplayName: "Grace"},
	{Email: "linus@example.com", DisplayName: "Linus"},
}

// Users registers the demo accounts, skipping any that already exist
func Users(ctx context.Context, auth *service.AuthService, log *zap.Logger) ([]*models.User, error) {
	var users []*models.User
	for _, u := range demoUsers {
		user, err := auth.Register(ctx, &types.RegisterRequest{
			Email:       u.Email,
			Password:    DemoPassword,
			DisplayName: u.DisplayName,
		})
		if errors.Is(err, types.ErrConflict) {
			log.Info("Demo user already exists, skipping", zap.String("email", u.Email))
			continue
		}
		if err != nil {
			return users, fmt.Errorf("failed to create %s: %w", u.Email, err)
		}
		log.Info("Created demo user", zap.String("email", u.Email))
		users = append(users, user)
	}
	return users, nil
}

var demoRecipes = []types.CreateRecipeRequest{
	{
		Title:           "Crispy Rice Salad",
		Description:     "Leftover rice fried until shattering, tossed with herbs and lime.",
		SourceURL:       "https://www.tiktok.com/@demo/video/7300000000000000001",
		Cuisine:         "thai",
		Category:        "lunch",
		Difficulty:      "easy",
		Ingredients:     []types.IngredientInput{{Name: "cooked rice", Quantity: "3", Unit: "cups"}, {Name: "lime", Quantity: "2"}, {Name: "mint"}},
		Instructions:    []string{"Press rice into a thin layer and fry until crisp.", "Break into shards and toss with dressing and herbs."},
		Tags:            []string{"viral", "leftovers"},
		PrepTimeMinutes: 10,
		CookTimeMinutes: 15,
		Servings:        2,
	},
	{
		Title:           "Baked Feta Pasta",
		Description:     "Cherry tomatoes and a block of feta roasted into a sauce.",
		SourceURL:       "https://www.instagram.com/reel/CLdemo01/",
		Cuisine:         "greek",
		Category:        "dinner",
		Difficulty:      "easy",
		Ingredients:     []types.IngredientInput{{Name: "feta", Quantity: "200", Unit: "g"}, {Name: "cherry tomatoes", Quantity: "2", Unit: "pints"}, {Name: "pasta", Quantity: "300", Unit: "g"}},
		Instructions:    []string{"Roast tomatoes around the feta at 200C for 30 minutes.", "Stir in cooked pasta."},
		Tags:            []string{"viral", "one-pan"},
		PrepTimeMinutes: 5,
		CookTimeMinutes: 30,
		Servings:        4,
	},
	{
		Title:           "Cloud Bread",
		Description:     "Three-ingredient whipped egg white bread.",
		SourceURL:       "https://www.youtube.com/shorts/demo0000001",
		Cuisine:         "american",
		Category:        "baking",
		Difficulty:      "medium",
		Ingredients:     []types.IngredientInput{{Name: "egg whites", Quantity: "3"}, {Name: "sugar", Quantity: "30", Unit: "g"}, {Name: "cornstarch", Quantity: "10", Unit: "g"}},
		Instructions:    []string{"Whip whites with sugar to stiff peaks.", "Fold in cornstarch, shape and bake at 150C for 25 minutes."},
		PrepTimeMinutes: 10,
		CookTimeMinutes: 25,
		Servings:        1,
	},
}

// Recipes saves the demo recipes for each user
func Recipes(ctx context.Context, recipes *service.RecipeService, users []*models.User) (int, error) {
	created := 0
	for _, user := range users {
		for i := range demoRecipes {
			req := demoRecipes[i]
			if _, _, err := recipes.Create(ctx, user.ID, &req); err != nil {
				return created, fmt.Errorf("failed to seed %q for %s: %w", req.Title, user.Email, err)
			}
			created++
		}
	}
	return created, nil
}
