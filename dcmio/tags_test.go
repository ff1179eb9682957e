package dcmio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestResolveTag(t *testing.T) {
	{
		got, err := ResolveTag("Modality")
		require.NoError(t, err)
		assert.Equal(t, tag.Modality, got)
	}
	{
		got, err := ResolveTag("0020000D")
		require.NoError(t, err)
		assert.Equal(t, tag.StudyInstanceUID, got)
	}
	{
		got, err := ResolveTag("x00081115")
		require.NoError(t, err)
		assert.Equal(t, tag.ReferencedSeriesSequence, got)
	}
	{
		_, err := ResolveTag("NotAKeyword")
		assert.ErrorIs(t, err, ErrUnknownTag)
	}
}

func TestBuildDataset(t *testing.T) {
	ds, err := BuildDataset(Tags{
		"StudyInstanceUID": "1.2.3",
		"Modality":         "MR",
		"00100010":         "Doe^Jane",
		"ReferencedSeriesSequence": []Tags{
			{"SeriesInstanceUID": "1.2.3.4"},
		},
		"StudyDescription": nil,
	})
	require.NoError(t, err)
	require.Len(t, ds.Elements, 4)

	// ascending tag order
	assert.Equal(t, tag.Modality, ds.Elements[0].Tag)
	assert.Equal(t, tag.ReferencedSeriesSequence, ds.Elements[1].Tag)
	assert.Equal(t, tag.PatientName, ds.Elements[2].Tag)
	assert.Equal(t, tag.StudyInstanceUID, ds.Elements[3].Tag)

	assert.Equal(t, "MR", String(Find(ds.Elements, tag.Modality)))
	assert.Equal(t, "Doe^Jane", String(Find(ds.Elements, tag.PatientName)))
	assert.Nil(t, Find(ds.Elements, tag.StudyDescription))

	item := FirstItem(Find(ds.Elements, tag.ReferencedSeriesSequence))
	assert.Equal(t, "1.2.3.4", String(Find(item, tag.SeriesInstanceUID)))
}

func TestBuildDatasetFromJSONValues(t *testing.T) {
	ds, err := BuildDataset(Tags{
		"ReferencedSeriesSequence": []interface{}{
			map[string]interface{}{"SeriesInstanceUID": "9.8.7"},
		},
		"ImageType":   []interface{}{"ORIGINAL", "PRIMARY"},
		"GraphicData": []interface{}{1.0, 2.5},
	})
	require.NoError(t, err)

	item := FirstItem(Find(ds.Elements, tag.ReferencedSeriesSequence))
	assert.Equal(t, "9.8.7", String(Find(item, tag.SeriesInstanceUID)))
	assert.Equal(t, []string{"ORIGINAL", "PRIMARY"}, Strings(Find(ds.Elements, tag.ImageType)))
	assert.Equal(t, []float64{1.0, 2.5}, Floats(Find(ds.Elements, tag.Tag{Group: 0x0070, Element: 0x0022})))
}

func TestBuildDatasetErrors(t *testing.T) {
	{
		_, err := BuildDataset(Tags{"NotAKeyword": "x"})
		assert.ErrorIs(t, err, ErrUnknownTag)
	}
	{
		_, err := BuildDataset(Tags{"Modality": struct{}{}})
		assert.ErrorIs(t, err, ErrUnsupportedValue)
	}
	{
		_, err := BuildDataset(Tags{"ImageType": []interface{}{"a", 1.0}})
		assert.ErrorIs(t, err, ErrUnsupportedValue)
	}
}

func TestAccessorsOnMissing(t *testing.T) {
	assert.Equal(t, "", String(nil))
	assert.Nil(t, Floats(nil))
	assert.Nil(t, Items(nil))
	assert.Nil(t, FirstItem(nil))
}

func TestPart10RoundTrip(t *testing.T) {
	ds, err := BuildDataset(Tags{
		"FileMetaInformationVersion": []byte{0x00, 0x01},
		"MediaStorageSOPClassUID":    "1.2.840.10008.5.1.4.1.1.88.11",
		"MediaStorageSOPInstanceUID": "1.2.3.4.5",
		"TransferSyntaxUID":          "1.2.840.10008.1.2.1",
		"SOPClassUID":                "1.2.840.10008.5.1.4.1.1.88.11",
		"SOPInstanceUID":             "1.2.3.4.5",
		"Modality":                   "SR",
		"StudyInstanceUID":           "1.2.3",
		"ReferencedSeriesSequence": []Tags{
			{"SeriesInstanceUID": "1.2.3.4"},
		},
	})
	require.NoError(t, err)

	data, err := Encode(ds)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	parsed, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "SR", String(Find(parsed.Elements, tag.Modality)))
	assert.Equal(t, "1.2.3", String(Find(parsed.Elements, tag.StudyInstanceUID)))
	item := FirstItem(Find(parsed.Elements, tag.ReferencedSeriesSequence))
	assert.Equal(t, "1.2.3.4", String(Find(item, tag.SeriesInstanceUID)))
}
