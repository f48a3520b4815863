package recordingid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingID_RoundTrip(t *testing.T) {
	cases := []struct {
		name                  string
		folder, file, tcsID   string
		expectedEncodedString string
	}{
		{"simple", "folder", "file", "123", "folder_file_123"},
		{"separator in folder", "my_folder", "file", "123", "my__folder_file_123"},
		{"separator everywhere", "a_b_c", "d__e", "f_g", "a__b__c_d____e_f__g"},
		{"single char file", "f", "x", "1", "f_x_1"},
		{"empty device id", "folder", "file", "", "folder_file_"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			id, err := FormatRecordingID(c.folder, c.file, c.tcsID)
			require.NoError(t, err)
			assert.Equal(t, c.expectedEncodedString, id)

			folder, err := FolderID(id)
			require.NoError(t, err)
			file, err := FileID(id)
			require.NoError(t, err)
			tcsID, err := TCSID(id)
			require.NoError(t, err)
			assert.Equal(t, c.folder, folder)
			assert.Equal(t, c.file, file)
			assert.Equal(t, c.tcsID, tcsID)
		})
	}
}

func TestRecordingID_Rejects(t *testing.T) {
	_, err := FormatRecordingID("", "file", "1")
	assert.True(t, errors.Is(err, ErrMalformed))
	_, err = FormatRecordingID("folder_", "file", "1")
	assert.True(t, errors.Is(err, ErrMalformed))
	_, err = FormatRecordingID("folder", "_file", "1")
	assert.True(t, errors.Is(err, ErrMalformed))

	for _, bad := range []string{"folder_file", "a_b_c_d", "a___b_c", "_file_1"} {
		_, err := Split(bad, 3)
		assert.Error(t, err, bad)
	}
}

func TestName(t *testing.T) {
	n := Name{FolderID: "rec_folder", Alias: "950087001", FileID: "abc"}
	value, err := FormatName("shongo_", n)
	require.NoError(t, err)
	assert.Equal(t, "shongo_rec__folder_950087001_abc", value)

	parsed, ok := ParseName("shongo_", value)
	require.True(t, ok)
	assert.Equal(t, n, parsed)

	_, ok = ParseName("other_", value)
	assert.False(t, ok)
	_, ok = ParseName("shongo_", "shongo_a_b_")
	assert.False(t, ok)
}
