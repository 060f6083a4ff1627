package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pageza/reelkitchen/backend/internal/models"
)

var (
	// ErrUnrecognizedResponse is returned when a body matches neither response shape
	ErrUnrecognizedResponse = errors.New("unrecognized extraction response")
	// ErrInvalidRecipe is returned for recipe payloads missing a title or ingredients
	ErrInvalidRecipe = errors.New("extracted recipe is missing a title or ingredients")
)

// ExtractedRecipe is a recipe as reported by the extraction service
type ExtractedRecipe struct {
	ExternalID      string
	Title           string
	Description     string
	SourceURL       string
	ThumbnailURL    string
	CreatorHandle   string
	Ingredients     models.Ingredients
	Instructions    []string
	Tags            []string
	Cuisine         string
	Category        string
	Difficulty      string
	PrepTimeMinutes int
	CookTimeMinutes int
	Servings        int
	Calories        float64
	Protein         float64
	Carbs           float64
	Fat             float64
}

// titleCase builds a fresh Caser per call; Casers are not safe for concurrent use
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.TrimSpace(s))
}

var wrapperKeys = []string{"data", "output", "body", "result", "json"}

// ParseExtractionResponse normalizes both the synchronous (inline recipe) and
// asynchronous (job id plus status) response shapes.
func ParseExtractionResponse(body []byte) (*ExtractionResult, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedResponse, err)
	}

	obj, envelopes, err := unwrapResponse(raw)
	if err != nil {
		return nil, err
	}

	// Correlation ids may sit on any envelope; the innermost one wins.
	levels := append([]map[string]any{obj}, envelopes...)
	result := &ExtractionResult{
		JobID:    firstStringOf(levels, "job_id", "jobId", "execution_id", "executionId"),
		RecipeID: firstStringOf(levels, "recipe_id", "recipeId"),
		Error:    firstString(obj, "error", "error_message", "errorMessage"),
	}
	if id := firstStringOf(levels, "submission_id", "submissionId"); id != "" {
		if parsed, err := uuid.Parse(id); err == nil {
			result.SubmissionID = &parsed
		}
	}

	if source := recipeSource(obj); source != nil {
		recipe, err := parseRecipe(source)
		if err != nil {
			return nil, err
		}
		result.Recipe = recipe
	}
	if result.Recipe != nil && result.Recipe.ExternalID == "" {
		result.Recipe.ExternalID = result.RecipeID
	}

	if raw := firstString(obj, "status", "state"); raw != "" {
		status, ok := normalizeStatus(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrUnrecognizedResponse, raw)
		}
		result.Status = status
	} else {
		switch {
		case result.Recipe != nil:
			result.Status = models.SubmissionCompleted
		case result.JobID != "":
			result.Status = models.SubmissionProcessing
		case result.Error != "":
			result.Status = models.SubmissionFailed
		default:
			return nil, ErrUnrecognizedResponse
		}
	}

	return result, nil
}

// unwrapResponse descends through arrays, string encodings and wrapper keys
// until it reaches the payload object. Envelopes passed on the way are
// returned innermost first.
func unwrapResponse(raw any) (map[string]any, []map[string]any, error) {
	var envelopes []map[string]any
	for depth := 0; depth < 5; depth++ {
		switch v := raw.(type) {
		case []any:
			if len(v) == 0 {
				return nil, nil, fmt.Errorf("%w: empty array", ErrUnrecognizedResponse)
			}
			raw = v[0]
		case string:
			// Some workflow engines double-encode the body
			var inner any
			if err := json.Unmarshal([]byte(v), &inner); err != nil {
				return nil, nil, fmt.Errorf("%w: unexpected string body", ErrUnrecognizedResponse)
			}
			raw = inner
		case map[string]any:
			if hasSignal(v) {
				return v, envelopes, nil
			}
			next, ok := wrapped(v)
			if !ok {
				return v, envelopes, nil
			}
			envelopes = append([]map[string]any{v}, envelopes...)
			raw = next
		default:
			return nil, nil, ErrUnrecognizedResponse
		}
	}
	return nil, nil, fmt.Errorf("%w: nesting too deep", ErrUnrecognizedResponse)
}

func firstStringOf(levels []map[string]any, keys ...string) string {
	for _, m := range levels {
		if v := firstString(m, keys...); v != "" {
			return v
		}
	}
	return ""
}

// recipeSource finds the recipe object at the top level, under "recipe", or
// one wrapper level down when a status envelope surrounds it
func recipeSource(obj map[string]any) map[string]any {
	if nested, ok := obj["recipe"].(map[string]any); ok {
		return nested
	}
	if looksLikeRecipe(obj) {
		return obj
	}
	for _, k := range wrapperKeys {
		inner, ok := obj[k].(map[string]any)
		if !ok {
			continue
		}
		if nested, ok := inner["recipe"].(map[string]any); ok {
			return nested
		}
		if looksLikeRecipe(inner) {
			return inner
		}
	}
	return nil
}

func hasSignal(m map[string]any) bool {
	for _, k := range []string{"job_id", "jobId", "execution_id", "executionId", "status", "state", "recipe", "recipe_id", "recipeId"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return looksLikeRecipe(m)
}

func wrapped(m map[string]any) (any, bool) {
	for _, k := range wrapperKeys {
		if v, ok := m[k]; ok {
			switch v.(type) {
			case map[string]any, []any, string:
				return v, true
			}
		}
	}
	return nil, false
}

func looksLikeRecipe(m map[string]any) bool {
	if firstString(m, "title", "name", "recipe_name", "recipeName") == "" {
		return false
	}
	_, ok := m["ingredients"]
	return ok
}

func normalizeStatus(raw string) (models.SubmissionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "complete", "success", "succeeded", "done", "finished":
		return models.SubmissionCompleted, true
	case "failed", "failure", "error", "errored", "cancelled", "canceled":
		return models.SubmissionFailed, true
	case "processing", "pending", "queued", "running", "in_progress", "started", "accepted":
		return models.SubmissionProcessing, true
	}
	return "", false
}

func parseRecipe(m map[string]any) (*ExtractedRecipe, error) {
	r := &ExtractedRecipe{
		ExternalID:    firstString(m, "id", "recipe_id", "recipeId"),
		Title:         strings.TrimSpace(firstString(m, "title", "name", "recipe_name", "recipeName")),
		Description:   strings.TrimSpace(firstString(m, "description", "summary")),
		SourceURL:     firstString(m, "source_url", "sourceUrl", "video_url", "videoUrl", "url"),
		ThumbnailURL:  firstString(m, "thumbnail_url", "thumbnailUrl", "thumbnail", "image_url", "imageUrl", "image"),
		CreatorHandle: firstString(m, "creator_handle", "creator", "author", "channel"),
		Ingredients:   parseIngredients(m["ingredients"]),
		Instructions:  parseInstructions(firstValue(m, "instructions", "steps", "directions", "method")),
		Tags:          stringList(m["tags"]),
		Cuisine:       titleCase(firstString(m, "cuisine")),
		Category:      titleCase(firstString(m, "category", "meal_type", "course")),
		Difficulty:    strings.ToLower(strings.TrimSpace(firstString(m, "difficulty"))),
	}

	r.PrepTimeMinutes = minutesOf(firstValue(m, "prep_time_minutes", "prep_time", "prepTime", "prep_minutes"))
	r.CookTimeMinutes = minutesOf(firstValue(m, "cook_time_minutes", "cook_time", "cookTime", "cook_minutes"))
	total := minutesOf(firstValue(m, "total_time_minutes", "total_time", "totalTime"))
	if t, ok := m["time"].(map[string]any); ok {
		if r.PrepTimeMinutes == 0 {
			r.PrepTimeMinutes = minutesOf(firstValue(t, "prep_minutes", "prep"))
		}
		if r.CookTimeMinutes == 0 {
			r.CookTimeMinutes = minutesOf(firstValue(t, "cook_minutes", "cook"))
		}
		if total == 0 {
			total = minutesOf(firstValue(t, "total_minutes", "total"))
		}
	}
	if r.PrepTimeMinutes == 0 && r.CookTimeMinutes == 0 && total > 0 {
		r.CookTimeMinutes = total
	}

	r.Servings = int(leadingNumber(firstValue(m, "servings", "yield", "serves")))

	nutrition := m
	for _, k := range []string{"nutrition", "macros"} {
		if n, ok := m[k].(map[string]any); ok {
			nutrition = n
			break
		}
	}
	r.Calories = leadingNumber(firstValue(nutrition, "calories", "kcal", "energy"))
	r.Protein = leadingNumber(firstValue(nutrition, "protein", "protein_g"))
	r.Carbs = leadingNumber(firstValue(nutrition, "carbs", "carbohydrates", "carbs_g"))
	r.Fat = leadingNumber(firstValue(nutrition, "fat", "fat_g"))

	if r.Title == "" || len(r.Ingredients) == 0 {
		return nil, ErrInvalidRecipe
	}
	if r.Instructions == nil {
		r.Instructions = []string{}
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return r, nil
}

func parseIngredients(v any) models.Ingredients {
	var out models.Ingredients
	switch items := v.(type) {
	case string:
		for _, line := range splitLines(items) {
			out = append(out, ParseIngredientLine(line))
		}
	case []any:
		for _, item := range items {
			switch it := item.(type) {
			case string:
				if strings.TrimSpace(it) != "" {
					out = append(out, ParseIngredientLine(it))
				}
			case map[string]any:
				ing := models.Ingredient{
					Name:     strings.TrimSpace(firstString(it, "name", "item", "ingredient")),
					Quantity: firstString(it, "quantity", "amount", "qty"),
					Unit:     firstString(it, "unit", "units"),
				}
				if ing.Name != "" {
					out = append(out, ing)
				}
			}
		}
	}
	return out
}

type step struct {
	n    float64
	text string
}

func parseInstructions(v any) []string {
	switch items := v.(type) {
	case string:
		var out []string
		for _, line := range splitLines(items) {
			if line = stripStepNumber(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	case []any:
		var steps []step
		for i, item := range items {
			switch it := item.(type) {
			case string:
				if s := stripStepNumber(it); s != "" {
					steps = append(steps, step{n: float64(i + 1), text: s})
				}
			case map[string]any:
				text := strings.TrimSpace(firstString(it, "instruction", "text", "description", "step_text"))
				n := float64(i + 1)
				if num := leadingNumber(firstValue(it, "step_number", "step", "number")); num > 0 {
					n = num
				}
				if s, ok := it["step"].(string); ok && text == "" {
					// {"step": "Chop the onions"} carries the text under "step"
					text = stripStepNumber(s)
					n = float64(i + 1)
				}
				if text != "" {
					steps = append(steps, step{n: n, text: text})
				}
			}
		}
		sort.SliceStable(steps, func(i, j int) bool { return steps[i].n < steps[j].n })
		out := make([]string, 0, len(steps))
		for _, s := range steps {
			out = append(out, s.text)
		}
		return out
	}
	return nil
}

var stepNumberRE = regexp.MustCompile(`(?i)^\s*(?:step\s*)?\d+\s*[.):-]\s+`)

func stripStepNumber(s string) string {
	return strings.TrimSpace(stepNumberRE.ReplaceAllString(s, ""))
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// knownUnits maps unit spellings to their canonical form
var knownUnits = func() map[string]string {
	aliases := map[string][]string{
		"cup":     {"cup", "cups", "c"},
		"tbsp":    {"tablespoon", "tablespoons", "tbsp", "tbs", "tbsps"},
		"tsp":     {"teaspoon", "teaspoons", "tsp", "tsps"},
		"g":       {"g", "gram", "grams"},
		"kg":      {"kg", "kilogram", "kilograms"},
		"mg":      {"mg"},
		"ml":      {"ml", "milliliter", "milliliters", "millilitre", "millilitres"},
		"l":       {"l", "liter", "liters", "litre", "litres"},
		"oz":      {"oz", "ounce", "ounces"},
		"lb":      {"lb", "lbs", "pound", "pounds"},
		"pinch":   {"pinch", "pinches"},
		"dash":    {"dash", "dashes"},
		"clove":   {"clove", "cloves"},
		"can":     {"can", "cans"},
		"slice":   {"slice", "slices"},
		"stick":   {"stick", "sticks"},
		"bunch":   {"bunch", "bunches"},
		"handful": {"handful", "handfuls"},
		"package": {"package", "packages", "pkg"},
		"sprig":   {"sprig", "sprigs"},
	}
	units := make(map[string]string)
	for unit, spellings := range aliases {
		for _, s := range spellings {
			units[s] = unit
		}
	}
	return units
}()

var unicodeFractions = strings.NewReplacer(
	"½", " 1/2", "¼", " 1/4", "¾", " 3/4", "⅓", " 1/3", "⅔", " 2/3", "⅛", " 1/8",
)

var quantityRE = regexp.MustCompile(`^(\d+\s+\d+/\d+|\d+/\d+|\d+(?:\.\d+)?(?:\s*-\s*\d+(?:\.\d+)?)?)\s*(.*)$`)

// ParseIngredientLine splits "1 1/2 cups flour" into quantity, unit and name
func ParseIngredientLine(line string) models.Ingredient {
	line = strings.TrimSpace(unicodeFractions.Replace(line))
	line = strings.Join(strings.Fields(line), " ")

	m := quantityRE.FindStringSubmatch(line)
	if m == nil {
		return models.Ingredient{Name: line}
	}
	ing := models.Ingredient{Quantity: strings.ReplaceAll(m[1], " - ", "-")}
	rest := m[2]

	word, remainder, _ := strings.Cut(rest, " ")
	if unit, ok := knownUnits[strings.ToLower(strings.TrimSuffix(word, "."))]; ok && remainder != "" {
		ing.Unit = unit
		rest = remainder
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "of ")
	ing.Name = rest
	if ing.Name == "" {
		return models.Ingredient{Name: line}
	}
	return ing
}

var (
	isoDurationRE  = regexp.MustCompile(`(?i)^P(?:T)?(?:(\d+)H)?(?:(\d+)M)?`)
	durationPartRE = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)(?:\s*(?:-|–|to)\s*(\d+(?:\.\d+)?))?\s*(hours?|hrs?|h|minutes?|mins?|m)?`)
)

// ParseMinutes converts "1 hr 15 min", "PT45M", "90" or "1.5 hours" into
// minutes. A range such as "15-20 minutes" counts as its upper bound.
func ParseMinutes(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.HasPrefix(strings.ToUpper(s), "PT") {
		m := isoDurationRE.FindStringSubmatch(s)
		if m != nil {
			h, _ := strconv.Atoi(m[1])
			mins, _ := strconv.Atoi(m[2])
			return h*60 + mins
		}
	}

	total := 0.0
	for _, part := range durationPartRE.FindAllStringSubmatch(s, -1) {
		value := part[1]
		if part[2] != "" {
			value = part[2]
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(part[3]), "h") {
			n *= 60
		}
		total += n
	}
	return int(math.Round(total))
}

func minutesOf(v any) int {
	switch t := v.(type) {
	case float64:
		return int(math.Round(t))
	case string:
		return ParseMinutes(t)
	}
	return 0
}

var leadingNumberRE = regexp.MustCompile(`\d+(?:\.\d+)?`)

func leadingNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if m := leadingNumberRE.FindString(t); m != "" {
			n, _ := strconv.ParseFloat(m, 64)
			return n
		}
	}
	return 0
}

func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
