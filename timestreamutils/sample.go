package timestreamutils

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
)

const (
	CPUMeasure    = "cpu_utilization"
	MemoryMeasure = "memory_utilization"

	availabilityZones = 3
	hosts             = 1000
)

// SampleRecord is one synthetic host measurement. Dimensions are drawn per
// record, so consecutive records rarely describe the same host.
type SampleRecord struct {
	Time              time.Time
	Region            string
	AZ                string
	Hostname          string
	CPUUtilization    float64
	MemoryUtilization float64
}

type SampleGenerator struct {
	region string
	rnd    *rand.Rand
	now    func() time.Time
}

func NewSampleGenerator(region string, seed int64) *SampleGenerator {
	return &SampleGenerator{
		region: region,
		rnd:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
	}
}

func (g *SampleGenerator) Next() SampleRecord {
	return SampleRecord{
		Time:              g.now(),
		Region:            g.region,
		AZ:                "az" + strconv.Itoa(g.rnd.Intn(availabilityZones)),
		Hostname:          "host" + strconv.Itoa(g.rnd.Intn(hosts)),
		CPUUtilization:    g.rnd.Float64() * 100,
		MemoryUtilization: g.rnd.Float64() * 100,
	}
}

// WriteInput puts both measures in one call, sharing the timestamp and the
// dimensions through the common attributes.
func (r SampleRecord) WriteInput(database string, table string) *timestreamwrite.WriteRecordsInput {
	return &timestreamwrite.WriteRecordsInput{
		DatabaseName: aws.String(database),
		TableName:    aws.String(table),
		CommonAttributes: &types.Record{
			Dimensions: []types.Dimension{
				{Name: aws.String("region"), Value: aws.String(r.Region)},
				{Name: aws.String("az"), Value: aws.String(r.AZ)},
				{Name: aws.String("hostname"), Value: aws.String(r.Hostname)},
			},
			MeasureValueType: types.MeasureValueTypeDouble,
			Time:             aws.String(strconv.FormatInt(r.Time.UnixMilli(), 10)),
			TimeUnit:         types.TimeUnitMilliseconds,
		},
		Records: []types.Record{
			{MeasureName: aws.String(CPUMeasure), MeasureValue: aws.String(formatMeasure(r.CPUUtilization))},
			{MeasureName: aws.String(MemoryMeasure), MeasureValue: aws.String(formatMeasure(r.MemoryUtilization))},
		},
	}
}

func formatMeasure(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
