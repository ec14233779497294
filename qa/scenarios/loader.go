package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/resqmeals/gateway/core/model"
)

type CharityDef struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Accepts []string `yaml:"accepts"`
	Address string   `yaml:"address"`
}

func (c CharityDef) ToModel() model.Charity {
	return model.Charity{
		ID:      c.ID,
		Type:    "charity",
		Name:    c.Name,
		Accepts: c.Accepts,
		Address: c.Address,
	}
}

type DriverDef struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Status   string   `yaml:"status"`
	Rating   float64  `yaml:"rating"`
	Channels []string `yaml:"channels,omitempty"`
}

func (d DriverDef) ToModel() model.Driver {
	status := d.Status
	if status == "" {
		status = model.DriverAvailable
	}
	return model.Driver{
		ID:       d.ID,
		Type:     "driver",
		Name:     d.Name,
		Status:   status,
		Rating:   d.Rating,
		Channels: d.Channels,
	}
}

// Replies holds the scripted model output per task. An empty entry means
// the task is never reached.
type Replies struct {
	Extract string `yaml:"extract"`
	Rank    string `yaml:"rank"`
	Draft   string `yaml:"draft"`
	Receipt string `yaml:"receipt"`
}

type Expected struct {
	Stage           string `yaml:"stage"`
	Kind            string `yaml:"kind,omitempty"`
	Charity         string `yaml:"charity,omitempty"`
	Driver          string `yaml:"driver,omitempty"`
	PickupAddress   string `yaml:"pickup_address,omitempty"`
	PickupDeadline  string `yaml:"pickup_deadline,omitempty"`
	Fallback        bool   `yaml:"fallback"`
	ReceiptParsed   bool   `yaml:"receipt_parsed"`
	AuditRecords    int    `yaml:"audit_records"`
	CompletionCalls int    `yaml:"completion_calls"`
}

type Scenario struct {
	Name         string       `yaml:"name"`
	Description  string       `yaml:"description,omitempty"`
	Message      string       `yaml:"message"`
	RestaurantID string       `yaml:"restaurant_id,omitempty"`
	Accepts      []string     `yaml:"accepts,omitempty"`
	Charities    []CharityDef `yaml:"charities"`
	Drivers      []DriverDef  `yaml:"drivers"`
	Replies      Replies      `yaml:"replies"`
	FailTask     string       `yaml:"fail_task,omitempty"`
	Expected     Expected     `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
