package provider

import (
	"github.com/rangeforge/rangeforge/pkg/blueprint"
	"github.com/rangeforge/rangeforge/pkg/lifecycle"
	"github.com/rangeforge/rangeforge/pkg/synth"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

// azureRequiredFields are the service principal fields the Azure driver needs.
var azureRequiredFields = []string{
	vault.FieldAzureClientID,
	vault.FieldAzureClientSecret,
	vault.FieldAzureTenantID,
	vault.FieldAzureSubscription,
}

// azureVMSizes maps the provider-neutral size classes to VM sizes.
var azureVMSizes = map[string]string{
	"small":  "Standard_B1ms",
	"medium": "Standard_B2s",
	"large":  "Standard_D2s_v5",
	"xlarge": "Standard_D4s_v5",
}

// azureImages maps well-known OS identifiers to marketplace image URNs.
var azureImages = map[string]string{
	"ubuntu-22.04": "Canonical:0001-com-ubuntu-server-jammy:22_04-lts-gen2:latest",
	"ubuntu-24.04": "Canonical:ubuntu-24_04-lts:server:latest",
	"debian-12":    "Debian:debian-12:12-gen2:latest",
	"windows-2022": "MicrosoftWindowsServer:WindowsServer:2022-datacenter-g2:latest",
}

// AzureDriver implements the Driver contract for Azure.
type AzureDriver struct{}

// NewAzureDriver creates the Azure driver.
func NewAzureDriver() *AzureDriver {
	return &AzureDriver{}
}

// Name returns the provider identifier.
func (d *AzureDriver) Name() string {
	return "azure"
}

// HasSufficientCredentials reports whether the full service principal is
// present: client id and secret, tenant, and subscription.
func (d *AzureDriver) HasSufficientCredentials(secrets vault.Fields) bool {
	return hasFields(secrets, azureRequiredFields)
}

// ConfigurationValues returns the engine configuration for an Azure deploy.
func (d *AzureDriver) ConfigurationValues(region string, secrets vault.Fields) (map[string]synth.ConfigValue, error) {
	if !d.HasSufficientCredentials(secrets) {
		return nil, insufficientCredentials(d.Name(), secrets, azureRequiredFields)
	}
	return map[string]synth.ConfigValue{
		"azure:location":       {Value: region},
		"azure:clientId":       {Value: secrets[vault.FieldAzureClientID], Secret: true},
		"azure:clientSecret":   {Value: secrets[vault.FieldAzureClientSecret], Secret: true},
		"azure:tenantId":       {Value: secrets[vault.FieldAzureTenantID], Secret: true},
		"azure:subscriptionId": {Value: secrets[vault.FieldAzureSubscription], Secret: true},
	}, nil
}

// EnvironmentCredentials returns the variables the engine's Azure plugin
// reads from the process environment.
func (d *AzureDriver) EnvironmentCredentials(secrets vault.Fields) (map[string]string, error) {
	if !d.HasSufficientCredentials(secrets) {
		return nil, insufficientCredentials(d.Name(), secrets, azureRequiredFields)
	}
	return map[string]string{
		"ARM_CLIENT_ID":       secrets[vault.FieldAzureClientID],
		"ARM_CLIENT_SECRET":   secrets[vault.FieldAzureClientSecret],
		"ARM_TENANT_ID":       secrets[vault.FieldAzureTenantID],
		"ARM_SUBSCRIPTION_ID": secrets[vault.FieldAzureSubscription],
	}, nil
}

// InfrastructureProgram declares the blueprint's topology on Azure: one
// resource group per range, a virtual network per blueprint VPC, subnets,
// VMs, and a jump host with a public IP.
func (d *AzureDriver) InfrastructureProgram(bp *blueprint.Range, region string) synth.Program {
	return func(ctx synth.Context) error {
		groupID, err := ctx.RegisterResource("azure:core/resourceGroup", bp.Name+"-rg", map[string]any{
			"location": region,
			"tags":     rangeTags(bp.Name),
		})
		if err != nil {
			return err
		}

		keyID, err := ctx.RegisterResource("tls:privateKey", bp.Name+"-range-key", map[string]any{
			"algorithm": "ED25519",
		})
		if err != nil {
			return err
		}

		var vpcIDs, subnetIDs, hostIDs []any
		var jumpSubnet synth.ResourceID

		for _, vpc := range bp.VPCs {
			vnetID, err := ctx.RegisterResource("azure:network/virtualNetwork", vpc.Name, map[string]any{
				"resource_group": groupID,
				"address_space":  []any{vpc.CIDR},
				"location":       region,
				"tags":           rangeTags(bp.Name),
			})
			if err != nil {
				return err
			}
			vpcIDs = append(vpcIDs, vnetID)

			for _, subnet := range vpc.Subnets {
				subnetID, err := ctx.RegisterResource("azure:network/subnet", vpc.Name+"-"+subnet.Name, map[string]any{
					"resource_group":   groupID,
					"virtual_network":  vnetID,
					"address_prefixes": []any{subnet.CIDR},
				})
				if err != nil {
					return err
				}
				subnetIDs = append(subnetIDs, subnetID)
				if jumpSubnet == "" {
					jumpSubnet = subnetID
				}

				for _, host := range subnet.Hosts {
					hostID, err := ctx.RegisterResource("azure:compute/virtualMachine",
						vpc.Name+"-"+subnet.Name+"-"+host.Hostname, map[string]any{
							"resource_group": groupID,
							"subnet":         subnetID,
							"image":          azureImage(host.OS),
							"size":           azureVMSize(host.Size),
							"key":            keyID,
							"tags":           rangeTags(bp.Name),
						})
					if err != nil {
						return err
					}
					hostIDs = append(hostIDs, hostID)
				}
			}
		}

		publicIPID, err := ctx.RegisterResource("azure:network/publicIp", bp.Name+"-jump-ip", map[string]any{
			"resource_group":    groupID,
			"allocation_method": "Static",
			"tags":              rangeTags(bp.Name),
		})
		if err != nil {
			return err
		}
		_, err = ctx.RegisterResource("azure:compute/virtualMachine", bp.Name+"-jump", map[string]any{
			"resource_group": groupID,
			"subnet":         jumpSubnet,
			"image":          azureImage("ubuntu-22.04"),
			"size":           azureVMSize("small"),
			"public_ip":      publicIPID,
			"key":            keyID,
			"tags":           rangeTags(bp.Name),
		})
		if err != nil {
			return err
		}

		ctx.Export(lifecycle.OutputVPCIDs, vpcIDs)
		ctx.Export(lifecycle.OutputSubnetIDs, subnetIDs)
		ctx.Export(lifecycle.OutputHostIDs, hostIDs)
		ctx.Export(lifecycle.OutputJumpHostIP, synth.AttrRef{ID: publicIPID, Attr: "ip_address"})
		ctx.Export(lifecycle.OutputRangePrivateKey, synth.AttrRef{ID: keyID, Attr: "private_key_openssh"})
		return nil
	}
}

// azureImage resolves an OS identifier to a marketplace image URN.
func azureImage(os string) string {
	if urn, ok := azureImages[os]; ok {
		return urn
	}
	return os
}

// azureVMSize resolves a size class to a VM size.
func azureVMSize(size string) string {
	if s, ok := azureVMSizes[size]; ok {
		return s
	}
	return azureVMSizes["small"]
}
