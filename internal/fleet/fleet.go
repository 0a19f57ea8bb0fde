// Package fleet loads the vehicle identity data used to seed
// vehicle-route assignments when the simulation engine starts.
package fleet

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed fleet.yml
var defaultFleetYAML []byte

// Assignment binds one physical device/vehicle to a route.
type Assignment struct {
	DeviceID       string  `yaml:"deviceId" validate:"required"`
	VehicleNumber  string  `yaml:"vehicleNumber" validate:"required"`
	VehicleType    string  `yaml:"vehicleType" validate:"required"`
	Operator       string  `yaml:"operator"`
	RouteID        string  `yaml:"routeId" validate:"required"`
	CruiseSpeedKmh float64 `yaml:"cruiseSpeedKmh" validate:"gte=0"`
}

type fleetFile struct {
	Assignments []Assignment `yaml:"assignments"`
}

// LoadAssignments reads vehicle-route assignments from a YAML file. An
// empty path loads the embedded demo fleet.
func LoadAssignments(path string) ([]Assignment, error) {
	data := defaultFleetYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read fleet file: %w", err)
		}
		data = b
	}

	var file fleetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fleet yaml: %w", err)
	}
	if len(file.Assignments) == 0 {
		return nil, fmt.Errorf("fleet file has no assignments")
	}

	v := validator.New()
	seen := make(map[string]bool, len(file.Assignments))
	for i, a := range file.Assignments {
		if err := v.Struct(a); err != nil {
			return nil, fmt.Errorf("invalid assignment %d (%s): %w", i, a.DeviceID, err)
		}
		if seen[a.DeviceID] {
			return nil, fmt.Errorf("duplicate device id %q", a.DeviceID)
		}
		seen[a.DeviceID] = true
	}

	return file.Assignments, nil
}
