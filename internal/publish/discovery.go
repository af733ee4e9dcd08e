package publish

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed sensors.yaml
var sensorCatalogYAML []byte

// SensorDef is one entry of the embedded discovery catalog. Repeat > 0
// fans the definition out into numbered entities keyed key_1..key_N.
type SensorDef struct {
	Name  string `yaml:"name"`
	Key   string `yaml:"key"`
	Group string `yaml:"group"`

	Repeat int `yaml:"repeat"`

	DeviceClass    string `yaml:"device_class"`
	StateClass     string `yaml:"state_class"`
	Unit           string `yaml:"unit"`
	Precision      *int   `yaml:"precision"`
	Icon           string `yaml:"icon"`
	EntityCategory string `yaml:"entity_category"`
	PayloadOn      string `yaml:"payload_on"`
	PayloadOff     string `yaml:"payload_off"`

	// Invertible marks dis-/charge measurements whose sign can be
	// flipped for display via the value template.
	Invertible bool `yaml:"invertible"`
}

type sensorCatalog struct {
	Sensors       []SensorDef `yaml:"sensors"`
	BinarySensors []SensorDef `yaml:"binary_sensors"`
}

// entityConfig is a Home Assistant discovery document using HA's
// abbreviated option keys.
type entityConfig struct {
	Name          string             `json:"name"`
	UniqueID      string             `json:"uniq_id"`
	ObjectID      string             `json:"obj_id"`
	StateTopic    string             `json:"stat_t"`
	ValueTemplate string             `json:"val_tpl"`
	Availability  entityAvailability `json:"avty"`
	Device        entityDevice       `json:"dev"`

	StateClass     string `json:"stat_cla,omitempty"`
	Unit           string `json:"unit_of_meas,omitempty"`
	Precision      *int   `json:"sug_dsp_prc,omitempty"`
	Icon           string `json:"ic,omitempty"`
	EntityCategory string `json:"ent_cat,omitempty"`
	DeviceClass    string `json:"dev_cla,omitempty"`
	PayloadOn      string `json:"pl_on,omitempty"`
	PayloadOff     string `json:"pl_off,omitempty"`
}

type entityAvailability struct {
	Topic string `json:"t"`
}

type entityDevice struct {
	IDs          string `json:"ids"`
	Name         string `json:"name,omitempty"`
	Model        string `json:"mdl,omitempty"`
	Manufacturer string `json:"mf,omitempty"`
	HWVersion    string `json:"hw,omitempty"`
	SWVersion    string `json:"sw,omitempty"`
	ViaDevice    string `json:"via_device,omitempty"`
}

// DiscoveryConfig turns the embedded catalog into per-pack discovery
// documents addressed at their config topics.
type DiscoveryConfig struct {
	mqttTopic       string
	discoveryPrefix string
	invertMeasures  bool
	catalog         sensorCatalog
}

// DiscoveryMessage is one ready-to-publish discovery document.
type DiscoveryMessage struct {
	Topic  string
	Entity entityConfig
}

func NewDiscoveryConfig(mqttTopic, discoveryPrefix string, invertMeasures bool) (*DiscoveryConfig, error) {
	d := &DiscoveryConfig{
		mqttTopic:       mqttTopic,
		discoveryPrefix: discoveryPrefix,
		invertMeasures:  invertMeasures,
	}
	if err := yaml.Unmarshal(sensorCatalogYAML, &d.catalog); err != nil {
		return nil, fmt.Errorf("parsing sensor catalog: %w", err)
	}
	if len(d.catalog.Sensors) == 0 || len(d.catalog.BinarySensors) == 0 {
		return nil, fmt.Errorf("sensor catalog is incomplete")
	}
	return d, nil
}

// Messages renders every discovery document for one pack. The first
// entity carries the full device block, the rest only the device id so
// HA links them without re-reading static metadata.
func (d *DiscoveryConfig) Messages(packNo int) []DiscoveryMessage {
	var messages []DiscoveryMessage
	devicePublished := false

	emit := func(entityType, subgroup string, def SensorDef, name, key string) {
		entity := entityConfig{
			Name:          name,
			UniqueID:      fmt.Sprintf("seplos_bms_pack_%d_%s", packNo, key),
			ObjectID:      fmt.Sprintf("seplos_bms_pack_%d_%s", packNo, key),
			StateTopic:    fmt.Sprintf("%s/pack-%d/sensors", d.mqttTopic, packNo),
			ValueTemplate: d.valueTemplate(def, subgroup, key),
			Availability:  entityAvailability{Topic: d.mqttTopic + "/availability"},
			Device:        d.deviceInfo(packNo, !devicePublished),

			StateClass:     def.StateClass,
			Unit:           def.Unit,
			Precision:      def.Precision,
			Icon:           def.Icon,
			EntityCategory: def.EntityCategory,
			DeviceClass:    def.DeviceClass,
			PayloadOn:      def.PayloadOn,
			PayloadOff:     def.PayloadOff,
		}
		devicePublished = true

		messages = append(messages, DiscoveryMessage{
			Topic: fmt.Sprintf("%s/%s/seplos-mqtt-pack-%d/%s/config",
				d.discoveryPrefix, entityType, packNo, key),
			Entity: entity,
		})
	}

	expand := func(entityType, subgroup string, defs []SensorDef) {
		for _, def := range defs {
			if def.Repeat > 0 {
				for i := 1; i <= def.Repeat; i++ {
					emit(entityType, subgroup, def,
						fmt.Sprintf("%s %d", def.Name, i),
						fmt.Sprintf("%s_%d", def.Key, i))
				}
				continue
			}
			emit(entityType, subgroup, def, def.Name, def.Key)
		}
	}

	expand("sensor", "normal", d.catalog.Sensors)
	expand("binary_sensor", "binary", d.catalog.BinarySensors)

	return messages
}

func (d *DiscoveryConfig) valueTemplate(def SensorDef, subgroup, key string) string {
	if def.Invertible && d.invertMeasures {
		return fmt.Sprintf("{{ value_json.%s.%s.%s | float * -1 }}", def.Group, subgroup, key)
	}
	return fmt.Sprintf("{{ value_json.%s.%s.%s }}", def.Group, subgroup, key)
}

func (d *DiscoveryConfig) deviceInfo(packNo int, full bool) entityDevice {
	device := entityDevice{IDs: fmt.Sprintf("seplos_bms_pack_%d", packNo)}
	if packNo > 0 {
		device.ViaDevice = "seplos_bms_pack_0"
	}
	if !full {
		return device
	}

	role := "Master"
	if packNo > 0 {
		role = "Slave"
	}
	device.Name = fmt.Sprintf("Seplos BMS Pack-%d (%s)", packNo, role)
	device.Model = "BMS V14 / V16"
	device.Manufacturer = "Seplos"
	device.HWVersion = "10C / 10E"
	device.SWVersion = "2.x / 16.x"
	return device
}
