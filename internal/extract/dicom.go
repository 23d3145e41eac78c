package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/gyeh/radwarehouse/internal/model"
)

var errLimit = errors.New("record limit reached")

// DICOMSource reads study headers from a directory tree of DICOM files.
// Pixel data is never loaded.
type DICOMSource struct {
	Root string
}

func (s *DICOMSource) Name() string { return "dicom:" + s.Root }

func (s *DICOMSource) Fetch(ctx context.Context, n int) ([]model.SourceRecord, error) {
	var records []model.SourceRecord
	var parsed, unreadable int

	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !looksLikeDicomFile(d.Name()) {
			return nil
		}

		ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
		if err != nil {
			unreadable++
			return nil
		}
		parsed++

		rec := recordFromDataset(&ds)
		if rec == nil {
			return nil
		}
		records = append(records, rec)
		if len(records) >= n {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, fmt.Errorf("walk %s: %w", s.Root, err)
	}
	if parsed == 0 && unreadable > 0 {
		return nil, fmt.Errorf("no readable DICOM files under %s (%d unreadable)", s.Root, unreadable)
	}
	return records, nil
}

// recordFromDataset maps the header tags of one instance onto a record.
// Instances without a SOP instance UID are skipped.
func recordFromDataset(ds *dicom.Dataset) model.SourceRecord {
	id := getStringByTag(ds, tag.SOPInstanceUID)
	if id == "" {
		return nil
	}

	rec := model.SourceRecord{model.FieldImageID: id}
	put := func(field string, t tag.Tag) {
		if v := getStringByTag(ds, t); v != "" {
			rec[field] = v
		}
	}
	put(model.FieldPatientAge, tag.PatientAge)
	put(model.FieldPatientSex, tag.PatientSex)
	put(model.FieldStudyDate, tag.StudyDate)
	put(model.FieldProjection, tag.ViewPosition)
	put(model.FieldModality, tag.Modality)
	put(model.FieldLabels, tag.StudyDescription)
	put(model.FieldReportText, tag.ImageComments)
	return rec
}

// getStringByTag extracts the first string value for the given tag, or "".
func getStringByTag(ds *dicom.Dataset, t tag.Tag) string {
	if ds == nil {
		return ""
	}
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil || el.Value == nil {
		return ""
	}
	if el.Value.ValueType() != dicom.Strings {
		return ""
	}
	vals := dicom.MustGetStrings(el.Value)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func looksLikeDicomFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".dcm" || ext == ".dicom" || ext == ""
}
