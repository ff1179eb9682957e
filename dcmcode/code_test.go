package dcmcode

import (
	"testing"

	"vindr-sr/dcmio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	other := MeasurementGroup
	other.Meaning = "measurement group"
	assert.True(t, MeasurementGroup.Equal(other))
	assert.False(t, MeasurementGroup.Equal(ImageRegion))

	other.SchemeDesignator = "SCT"
	assert.False(t, MeasurementGroup.Equal(other))
}

func TestLookup(t *testing.T) {
	{
		c, found := Lookup("125309", SchemeDCM)
		assert.True(t, found)
		assert.Equal(t, ShortLabel, c)
	}
	{
		_, found := Lookup("125309", "SCT")
		assert.False(t, found)
	}
}

func TestElementsRoundTrip(t *testing.T) {
	ds, err := dcmio.BuildDataset(TrackingIdentifier.Tags())
	require.NoError(t, err)

	c := FromElements(ds.Elements)
	require.NotNil(t, c)
	assert.Equal(t, TrackingIdentifier, *c)

	assert.Nil(t, FromElements(nil))
}

func TestElementsMissingMeaning(t *testing.T) {
	ds, err := dcmio.BuildDataset(dcmio.Tags{"CodeValue": "111030", "CodingSchemeDesignator": SchemeDCM})
	require.NoError(t, err)
	c := FromElements(ds.Elements)
	require.NotNil(t, c)
	assert.Equal(t, "Image Region", c.Meaning)

	ds, err = dcmio.BuildDataset(dcmio.Tags{"CodeValue": "T-1", "CodingSchemeDesignator": "99LOCAL"})
	require.NoError(t, err)
	c = FromElements(ds.Elements)
	require.NotNil(t, c)
	assert.Empty(t, c.Meaning)
}
