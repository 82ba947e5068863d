package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/repository"
	"gorm.io/datatypes"
)

// DatabaseSeeder loads the built-in question bank into an empty database
type DatabaseSeeder struct {
	repo *repository.GORMRepository
}

func NewDatabaseSeeder(repo *repository.GORMRepository) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo}
}

// SeedDatabase inserts the default questions once. It is a no-op when any question exists.
func (s *DatabaseSeeder) SeedDatabase(ctx context.Context) error {
	count, err := s.repo.CountQuestions(ctx)
	if err != nil {
		return fmt.Errorf("failed to count questions: %w", err)
	}
	if count > 0 {
		slog.Info("Question bank already present, skipping seed", "questions", count)
		return nil
	}

	seeded := 0
	for _, question := range defaultQuestions() {
		if err := s.seedQuestion(ctx, question); err != nil {
			slog.Error("Failed to seed question", "title", question.Title, "error", err)
			continue
		}
		seeded++
	}
	slog.Info("Database seeding completed", "questions", seeded)
	return nil
}

// seedQuestion creates a question unless one with the same title exists.
func (s *DatabaseSeeder) seedQuestion(ctx context.Context, question models.Question) error {
	existing, err := s.repo.GetQuestionByTitle(ctx, question.Title)
	if err != nil {
		return fmt.Errorf("error checking question %s: %w", question.Title, err)
	}
	if existing != nil {
		slog.Info("Question already exists, skipping", "title", question.Title)
		return nil
	}

	question.IsActive = true
	if err := s.repo.CreateQuestion(ctx, &question); err != nil {
		return fmt.Errorf("failed to create question %s: %w", question.Title, err)
	}
	return nil
}

func defaultQuestions() []models.Question {
	return []models.Question{
		{
			Type:             models.QuestionLeetCode,
			Difficulty:       models.DifficultyEasy,
			Title:            "Two Sum",
			Content:          "Return the indices of the two numbers in an array that add up to a target.",
			ProblemStatement: "Given an array of integers nums and an integer target, return indices of the two numbers such that they add up to target. Each input has exactly one solution and the same element may not be used twice.",
			Constraints:      "2 <= nums.length <= 10^4; -10^9 <= nums[i], target <= 10^9",
			Examples:         datatypes.JSON(`[{"input":"nums = [2,7,11,15], target = 9","output":"[0,1]"}]`),
			ExpectedOutput:   "[0,1]",
			Tags:             datatypes.JSONSlice[string]{"array", "hash-table"},
			EstimatedMinutes: 15,
		},
		{
			Type:             models.QuestionLeetCode,
			Difficulty:       models.DifficultyMedium,
			Title:            "Longest Substring Without Repeating Characters",
			Content:          "Find the length of the longest substring without repeating characters.",
			ProblemStatement: "Given a string s, find the length of the longest substring that contains no repeated characters.",
			Constraints:      "0 <= s.length <= 5 * 10^4",
			Examples:         datatypes.JSON(`[{"input":"s = \"abcabcbb\"","output":"3"}]`),
			ExpectedOutput:   "3",
			Tags:             datatypes.JSONSlice[string]{"string", "sliding-window"},
			EstimatedMinutes: 25,
		},
		{
			Type:             models.QuestionLeetCode,
			Difficulty:       models.DifficultyHard,
			Title:            "Merge k Sorted Lists",
			Content:          "Merge k sorted linked lists into one sorted list.",
			ProblemStatement: "You are given an array of k linked lists, each sorted in ascending order. Merge all of them into one sorted linked list and return it.",
			Constraints:      "0 <= k <= 10^4; total nodes <= 10^4",
			Examples:         datatypes.JSON(`[{"input":"[[1,4,5],[1,3,4],[2,6]]","output":"[1,1,2,3,4,4,5,6]"}]`),
			ExpectedOutput:   "[1,1,2,3,4,4,5,6]",
			Tags:             datatypes.JSONSlice[string]{"linked-list", "heap"},
			EstimatedMinutes: 40,
		},
		{
			Type:               models.QuestionSystemDesign,
			Difficulty:         models.DifficultyMedium,
			Title:              "URL Shortener",
			Content:            "Design a URL shortening service.",
			SystemRequirements: "Shorten long URLs, redirect short URLs to the original, expire links, and report click counts.",
			ScaleRequirements:  "100M new URLs per month, 10:1 read to write ratio, redirects under 50ms at p99.",
			Tags:               datatypes.JSONSlice[string]{"storage", "caching"},
			EstimatedMinutes:   45,
		},
		{
			Type:               models.QuestionSystemDesign,
			Difficulty:         models.DifficultyHard,
			Title:              "Chat Service",
			Content:            "Design a one-to-one and group chat service.",
			SystemRequirements: "Deliver messages in order per conversation, show online presence, keep history, and support offline delivery.",
			ScaleRequirements:  "50M daily active users, groups of up to 500 members.",
			Tags:               datatypes.JSONSlice[string]{"messaging", "websockets"},
			EstimatedMinutes:   60,
		},
		{
			Type:             models.QuestionBehavioral,
			Difficulty:       models.DifficultyEasy,
			Title:            "Team Conflict",
			Content:          "Tell me about a time you disagreed with a teammate.",
			Scenario:         "Two engineers disagree on the approach for a feature close to a deadline.",
			KeyPoints:        datatypes.JSONSlice[string]{"listening", "compromise", "outcome"},
			FollowUps:        datatypes.JSONSlice[string]{"What would you do differently?"},
			Tags:             datatypes.JSONSlice[string]{"teamwork"},
			EstimatedMinutes: 5,
		},
		{
			Type:             models.QuestionBehavioral,
			Difficulty:       models.DifficultyMedium,
			Title:            "Missed Deadline",
			Content:          "Describe a project where you missed a deadline. How did you handle it?",
			Scenario:         "A dependency slipped and the release date was at risk.",
			KeyPoints:        datatypes.JSONSlice[string]{"ownership", "communication", "lessons learned"},
			FollowUps:        datatypes.JSONSlice[string]{"How did you keep stakeholders informed?"},
			Tags:             datatypes.JSONSlice[string]{"ownership"},
			EstimatedMinutes: 5,
		},
		{
			Type:             models.QuestionBehavioral,
			Difficulty:       models.DifficultyHard,
			Title:            "Leading Through Ambiguity",
			Content:          "Tell me about a time you led a team through an ambiguous problem.",
			Scenario:         "Requirements were unclear and several teams depended on your decision.",
			KeyPoints:        datatypes.JSONSlice[string]{"framing the problem", "decision making", "alignment", "measurable result"},
			FollowUps:        datatypes.JSONSlice[string]{"How did you decide when you had enough information?"},
			Tags:             datatypes.JSONSlice[string]{"leadership"},
			EstimatedMinutes: 7,
		},
	}
}
