package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Submission{},
		&Recipe{},
		&RecipeFavorite{},
		&RecipeCook{},
		&UserStats{},
		&PointEvent{},
		&Challenge{},
		&ChallengeProgress{},
		&RouletteSpin{},
	}
}
