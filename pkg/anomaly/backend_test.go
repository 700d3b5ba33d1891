// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECODBackend_FarPointScoresHigher(t *testing.T) {
	b := NewECODBackend()
	training := make([][]float64, 200)
	for i := range training {
		training[i] = []float64{float64(i % 20), float64(i % 13)}
	}
	require.NoError(t, b.Fit(training))

	scores, err := b.DecisionFunction([][]float64{{10, 6}, {500, 500}})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[1], scores[0])
}

func TestDefaultBackendFactory_RejectsUnknownBackend(t *testing.T) {
	factory := NewDefaultBackendFactory()
	_, err := factory("suod", 0.1)
	assert.Error(t, err)
}

func TestDefaultBackendFactory_BuildsECOD(t *testing.T) {
	factory := NewDefaultBackendFactory()
	impl, err := factory("ecod", 0.1)
	require.NoError(t, err)
	assert.NotNil(t, impl)
}
