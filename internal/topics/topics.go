// Package topics rotates seed topics per subject: the model proposes fresh
// episode hooks excluding an on-disk history of already-used ones, with a
// built-in seed pool as fallback when the model is unavailable.
package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mfranzen/storyforge/internal/llm"
	"github.com/mfranzen/storyforge/internal/storage"
)

// usedFileName sits at the projects root, next to the category directories.
const usedFileName = ".used-topics.json"

var subjectAliases = map[string]string{
	"bigfoot":          "bigfoot",
	"sasquatch":        "bigfoot",
	"yeti":             "yeti",
	"ufo":              "ufo",
	"ufos":             "ufo",
	"aliens":           "ufo",
	"nessie":           "lochness",
	"loch ness":        "lochness",
	"lochness":         "lochness",
	"mothman":          "mothman",
	"chupacabra":       "chupacabra",
	"wendigo":          "wendigo",
	"skinwalker ranch": "skinwalker_ranch",
	"bermuda triangle": "bermuda_triangle",
	"jersey devil":     "jersey_devil",
	"men in black":     "men_in_black",
	"thunderbird":      "thunderbird",
}

var subjectLabels = map[string]string{
	"bigfoot":          "Bigfoot",
	"lochness":         "Loch Ness",
	"ufo":              "UFO",
	"mothman":          "Mothman",
	"skinwalker_ranch": "Skinwalker Ranch",
	"bermuda_triangle": "Bermuda Triangle",
	"chupacabra":       "Chupacabra",
	"wendigo":          "Wendigo",
	"jersey_devil":     "Jersey Devil",
	"men_in_black":     "Men in Black",
	"yeti":             "Yeti",
	"thunderbird":      "Thunderbird",
}

var seedPools = map[string][]string{
	"bigfoot": {
		"Lone hiker injured in fall is brought food and water by reclusive Bigfoot",
		"Veteran ranger finds Bigfoot nest and is silently stalked back to watchtower",
	},
	"lochness": {
		"Fishing boat capsized by massive serpentine creature in Loch Ness during storm",
		"Underwater photographer captures clear footage before being rammed by creature",
	},
	"ufo": {
		"Air Force pilot forced to engage with silent tic-tac shaped UFO that mirrors every move",
		"Rural family watches triangular UFO hover silently, causing power outage and time distortion",
	},
	"mothman": {
		"Late-night driver pursued along rural road by massive winged figure with glowing red eyes",
		"Factory workers see 7-foot creature with wings perched on roof hours before fatal accident",
	},
	"chupacabra": {
		"Rancher discovers dozens of livestock drained of blood with precise puncture wounds",
		"Thermal camera captures bipedal creature with spines running through Texas ranch at night",
	},
	"wendigo": {
		"Snowbound hikers resort to cannibalism, only to be hunted by skeletal antlered creature",
		"Park ranger investigating missing persons finds cave filled with gnawed human bones",
	},
	"yeti": {
		"Mountaineer rescued from crevasse by massive white-furred humanoid in Himalayas",
		"Sherpa guides refuse to continue after finding enormous footprints at base camp",
	},
	"thunderbird": {
		"Rancher watches bird with 30-foot wingspan carry off full-grown calf",
		"Native elder describes Thunderbird descending during storm to take fisherman",
	},
	"jersey_devil": {
		"Motorist's car breaks down in Pine Barrens and winged hoofed creature attacks vehicle",
		"Farmer discovers livestock eviscerated with claw marks on barn doors",
	},
	"men_in_black": {
		"UFO witness visited by two pale men in outdated suits who threaten him into silence",
		"Journalist investigating alien encounters has files stolen by mysterious agents",
	},
	"skinwalker_ranch": {
		"Rancher's cattle found mutilated with surgical precision and no tracks to bodies",
		"Family witnesses shape-shifting creature transform from wolf to humanoid figure",
	},
	"bermuda_triangle": {
		"Cargo ship's entire crew vanishes mid-voyage with vessel found drifting empty",
		"Pilot's final transmission describes instruments going haywire before plane disappears",
	},
}

// CanonicalSubject maps user input to its canonical subject key. Unknown
// subjects pass through lowercased.
func CanonicalSubject(s string) string {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		raw = "cryptid"
	}
	if canonical, ok := subjectAliases[raw]; ok {
		return canonical
	}
	return raw
}

// Pick is the result of one rotation step.
type Pick struct {
	Subject    string   `json:"subject"`
	Topic      string   `json:"topic"`
	Candidates []string `json:"candidates"`
}

// Service rotates topics and persists the used-topics history under the
// projects root. History mutations are serialized by a mutex; the history
// file is small.
type Service struct {
	mu            sync.Mutex
	client        llm.Client
	root          string
	generateCount int
	historyLimit  int
	logger        *slog.Logger
}

// NewService creates a rotation service persisting history under root.
func NewService(client llm.Client, root string, generateCount, historyLimit int) *Service {
	if generateCount < 1 {
		generateCount = 1
	}
	if historyLimit < 1 {
		historyLimit = 1
	}
	return &Service{
		client:        client,
		root:          root,
		generateCount: generateCount,
		historyLimit:  historyLimit,
		logger:        slog.Default(),
	}
}

// Next returns a topic for the subject that has not been used before,
// records it in the history, and reports the full candidate list. The model
// proposes candidates; on failure the built-in seed pool serves instead.
func (s *Service) Next(ctx context.Context, subject string) (Pick, error) {
	subject = CanonicalSubject(subject)
	key := historyKey(subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.readUsed()
	usedList := used[key]
	usedSet := make(map[string]struct{}, len(usedList))
	for _, t := range usedList {
		usedSet[strings.ToLower(t)] = struct{}{}
	}

	candidates, err := s.generate(ctx, subject, usedList)
	if err != nil {
		s.logger.Warn("topic generation failed, using seed pool", "subject", subject, "error", err)
		candidates = poolFallback(subject, s.generateCount, usedSet)
	}

	topic := ""
	for _, t := range candidates {
		if _, seen := usedSet[strings.ToLower(t)]; !seen {
			topic = t
			break
		}
	}
	if topic == "" && len(candidates) > 0 {
		topic = candidates[0]
	}
	if topic == "" {
		topic = poolFallback(subject, 1, nil)[0]
	}

	next := append([]string{topic}, usedList...)
	if len(next) > s.historyLimit {
		next = next[:s.historyLimit]
	}
	used[key] = next
	if err := s.writeUsed(used); err != nil {
		return Pick{}, fmt.Errorf("persist topic history: %w", err)
	}

	return Pick{Subject: subject, Topic: topic, Candidates: candidates}, nil
}

// Reset clears the used-topics history for a subject.
func (s *Service) Reset(subject string) (string, error) {
	subject = CanonicalSubject(subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.readUsed()
	delete(used, historyKey(subject))
	if err := s.writeUsed(used); err != nil {
		return "", fmt.Errorf("persist topic history: %w", err)
	}
	return subject, nil
}

func historyKey(subject string) string {
	return "subject:" + storage.Slugify(subject)
}

// readUsed loads the history file. A missing or corrupt file starts fresh.
func (s *Service) readUsed() map[string][]string {
	raw, err := os.ReadFile(filepath.Join(s.root, usedFileName))
	if err != nil {
		return map[string][]string{}
	}
	var used map[string][]string
	if err := json.Unmarshal(raw, &used); err != nil || used == nil {
		return map[string][]string{}
	}
	return used
}

func (s *Service) writeUsed(used map[string][]string) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(used, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.root, usedFileName), data, 0o644)
}

// generate asks the model for fresh hooks, excluding the used list.
func (s *Service) generate(ctx context.Context, subject string, usedList []string) ([]string, error) {
	label := subjectLabel(subject)

	var examples string
	if pool := seedPools[subject]; len(pool) > 0 {
		shuffled := make([]string, len(pool))
		copy(shuffled, pool)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if len(shuffled) > 10 {
			shuffled = shuffled[:10]
		}
		examples = "Examples:\n- " + strings.Join(shuffled, "\n- ") + "\n"
	}

	exclude := "(none)"
	if len(usedList) > 0 {
		exclude = "- " + strings.Join(usedList, "\n- ")
	}

	prompt := fmt.Sprintf(`You create episode hooks for a documentary channel about %s encounters.

**Use the EXACT TERM %q in every topic.**

%s
Generate %d distinct %s encounter hooks.
Rules:
- Use the EXACT TERM %q in every topic
- One sentence each, high-stakes direct encounter
- Vary roles, actions, outcomes
- No clickbait, questions, hashtags, quotes

Exclude already-used:
%s

Return STRICT JSON: { "topics": ["...", "..."] }`,
		label, label, examples, s.generateCount, label, label, exclude)

	resp, err := s.client.Complete(ctx, llm.Request{
		Messages: llm.SystemUser("Return STRICT JSON only.", prompt),
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var reply struct {
		Topics []string `json:"topics"`
	}
	if err := llm.DecodeLast(resp.Content, &reply); err != nil {
		return nil, err
	}
	topics := make([]string, 0, len(reply.Topics))
	for _, t := range reply.Topics {
		if strings.TrimSpace(t) != "" {
			topics = append(topics, t)
		}
	}
	return topics, nil
}

func subjectLabel(subject string) string {
	if label, ok := subjectLabels[subject]; ok {
		return label
	}
	return subject
}

// poolFallback draws unused entries from the built-in seed pool, shuffled.
// Subjects without a pool get a generic hook.
func poolFallback(subject string, n int, exclude map[string]struct{}) []string {
	pool := seedPools[subject]
	if len(pool) == 0 {
		return []string{subjectLabel(subject) + " encounter reported by witnesses"}
	}

	available := make([]string, 0, len(pool))
	for _, t := range pool {
		if _, seen := exclude[strings.ToLower(t)]; !seen {
			available = append(available, t)
		}
	}
	if len(available) == 0 {
		available = append(available, pool...)
	}
	rand.Shuffle(len(available), func(i, j int) { available[i], available[j] = available[j], available[i] })
	if n > len(available) {
		n = len(available)
	}
	return available[:n]
}
