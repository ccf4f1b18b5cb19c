package processor

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"iot-simulator/internal/models"
)

// exportPackage 导出数据包，sensor_data 内读数按时间升序
type exportPackage struct {
	ExportTimestamp time.Time                         `json:"export_timestamp"`
	SensorData      map[string][]models.SensorReading `json:"sensor_data"`
	Metadata        map[string]models.SensorMeta      `json:"metadata,omitempty"`
	SystemInfo      *models.SystemInfo                `json:"system_info,omitempty"`
}

// csvColumns CSV 导出列，顺序固定
var csvColumns = []string{
	"sensor_id", "sensor_type", "timestamp", "value", "unit",
	"status", "location", "name", "reading_count",
}

// excelHeader Excel 导出表头
var excelHeader = []string{
	"Sensor ID", "Sensor Type", "Timestamp", "Value", "Unit",
	"Status", "Location", "Name", "Reading Count",
}

// Export 导出传感器数据
// sensorID 为 nil 时导出全部传感器；未知传感器导出空数据包。
// format 支持 json、csv、xlsx（大小写不敏感），其余返回 ErrUnsupportedFormat。
// includeMetadata 仅影响 JSON 格式，附带元数据和系统信息
func (p *DataProcessor) Export(sensorID *string, format string, includeMetadata bool) ([]byte, error) {
	p.mu.RLock()

	pkg := exportPackage{
		ExportTimestamp: time.Now(),
		SensorData:      make(map[string][]models.SensorReading),
	}

	if sensorID != nil {
		if r, ok := p.data[*sensorID]; ok {
			pkg.SensorData[*sensorID] = r.snapshot()
		}
	} else {
		for id, r := range p.data {
			pkg.SensorData[id] = r.snapshot()
		}
	}

	if includeMetadata {
		meta := make(map[string]models.SensorMeta, len(p.metadata))
		for id, m := range p.metadata {
			meta[id] = *m
		}
		pkg.Metadata = meta
		info := p.systemInfoLocked()
		pkg.SystemInfo = &info
	}

	p.mu.RUnlock()

	switch strings.ToLower(format) {
	case "json":
		out, err := json.MarshalIndent(pkg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal export package: %w", err)
		}
		return out, nil
	case "csv":
		return exportAsCSV(pkg.SensorData)
	case "xlsx":
		return exportAsExcel(pkg.SensorData)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// exportAsCSV 生成 CSV，每条读数一行
func exportAsCSV(data map[string][]models.SensorReading) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvColumns); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, id := range sortedSensorIDs(data) {
		for _, reading := range data[id] {
			record := []string{
				reading.SensorID,
				string(reading.SensorType),
				reading.Timestamp.Format(time.RFC3339),
				strconv.FormatFloat(reading.Value, 'f', -1, 64),
				reading.Unit,
				string(reading.Status),
				reading.Location,
				reading.Name,
				strconv.FormatInt(reading.ReadingCount, 10),
			}
			if err := w.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write csv record: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv writer: %w", err)
	}
	return buf.Bytes(), nil
}

// exportAsExcel 生成 Excel 文件
func exportAsExcel(data map[string][]models.SensorReading) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Sensor Data"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close() // Close on error
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")

	// 设置默认活动工作表
	f.SetActiveSheet(index)

	// 设置表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range excelHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 设置列宽
	columnWidths := []float64{
		24, // Sensor ID
		14, // Sensor Type
		22, // Timestamp
		10, // Value
		10, // Unit
		12, // Status
		20, // Location
		26, // Name
		14, // Reading Count
	}
	for i := 0; i < len(excelHeader); i++ {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 写入数据，按传感器 ID 排序保证行序稳定
	row := 2
	for _, id := range sortedSensorIDs(data) {
		for _, reading := range data[id] {
			values := []any{
				reading.SensorID,
				string(reading.SensorType),
				reading.Timestamp.Format("2006-01-02 15:04:05"),
				reading.Value,
				reading.Unit,
				string(reading.Status),
				reading.Location,
				reading.Name,
				reading.ReadingCount,
			}
			for col, value := range values {
				if err := setCellValue(f, sheetName, col+1, row, value); err != nil {
					f.Close()
					return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
				}
			}
			row++
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	// Write to bytes buffer
	// Note: File must remain open during Write operation
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	// Close file after writing
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// setCellValue 设置单元格值
func setCellValue(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

// sortedSensorIDs 返回排序后的传感器 ID 列表
func sortedSensorIDs(data map[string][]models.SensorReading) []string {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
