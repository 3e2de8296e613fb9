package config

import (
	"fmt"
)

// Recipe is an ordered list of steps replayed by the run command.
//
//	name: churn-cleanup
//	steps:
//	  - step: missing
//	    params: {column: age, method: median}
//	  - step: encode
//	    params: {columns: [plan], method: onehot}
type Recipe struct {
	Name  string       `yaml:"name" json:"name"`
	Steps []RecipeStep `yaml:"steps" json:"steps"`
}

// RecipeStep names a registered step and its flat parameters.
type RecipeStep struct {
	Step   string         `yaml:"step" json:"step"`
	Params map[string]any `yaml:"params" json:"params"`
}

// LoadRecipe reads and checks a recipe file.
func LoadRecipe(filePath string) (*Recipe, error) {
	var r Recipe
	if err := Load(filePath, &r); err != nil {
		return nil, err
	}
	if len(r.Steps) == 0 {
		return nil, invalid("recipe %s has no steps", filePath)
	}
	for i, s := range r.Steps {
		if s.Step == "" {
			return nil, invalid("recipe step %d has no step name", i+1)
		}
	}
	return &r, nil
}

func (s RecipeStep) String() string {
	return fmt.Sprintf("%s%v", s.Step, s.Params)
}
