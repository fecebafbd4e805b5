package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqbridge/dq-connector/pkg/config"
	"github.com/dqbridge/dq-connector/pkg/record"
)

func TestMapAll(t *testing.T) {
	good := baseRule()
	bad := baseRule()
	delete(bad, "EXTERNAL SERVER")
	other := baseRule()
	other["NAME"] = "metric-2"

	mapped, err := MapAll(newRuleMapper(), []record.Record{good, bad, other})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1:")
	assert.Contains(t, err.Error(), `"EXTERNAL SERVER"`)

	require.Len(t, mapped, 2)
	assert.Equal(t, 0, mapped[0].Index)
	assert.Equal(t, 2, mapped[1].Index)
	assert.Equal(t, "metric-2", mapped[1].Plan.Key)
}

func TestMapAllNoErrors(t *testing.T) {
	mapped, err := MapAll(newProfileMapper(), []record.Record{baseProfile()})
	require.NoError(t, err)
	assert.Len(t, mapped, 1)

	mapped, err = MapAll(newProfileMapper(), nil)
	require.NoError(t, err)
	assert.Empty(t, mapped)
}

func TestUniqueByKey(t *testing.T) {
	p1 := baseProfile()
	p2 := baseProfile()
	p2["ROW COUNT"] = "5"
	p3 := baseProfile()
	p3["EXTERNAL NAME"] = "phone"

	mapped, err := MapAll(newProfileMapper(), []record.Record{p1, p2, p3})
	require.NoError(t, err)

	unique, dropped := UniqueByKey(mapped)
	assert.Equal(t, 1, dropped)
	require.Len(t, unique, 2)
	assert.Equal(t, 0, unique[0].Index)
	assert.Equal(t, 2, unique[1].Index)
	assert.Len(t, mapped, 3, "input is not modified")
}

func TestDistinctDomains(t *testing.T) {
	a := baseRule()
	b := baseRule()
	b["EXTERNAL SERVER"] = "srv0"
	b["DIMENSION"] = "Validity"

	mapped, err := MapAll(newRuleMapper(), []record.Record{a, b, a})
	require.NoError(t, err)
	assert.Equal(t, []string{DimensionDomain, "srv0", "srv1"}, DistinctDomains(mapped))
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(config.Collibra{
		CommunityName:        "C",
		GovernanceName:       "G",
		RulebookName:         "R",
		DataAssetName:        "Data Asset Domain",
		DataAssetDescription: "desc",
	})
	assert.Equal(t, Settings{
		CommunityName:        "C",
		GovernanceDomain:     "G",
		RulebookDomain:       "R",
		DataAssetDomainType:  "Data Asset Domain",
		DataAssetDescription: "desc",
	}, s)
}
