package fiscal

// Fixtures compartilhadas pelos testes do pacote.

const nfeNoBilling = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe35240312345678000195550010000012341000012345" versao="4.00">
      <ide>
        <cUF>35</cUF>
        <natOp>VENDA DE MERCADORIA</natOp>
        <mod>55</mod>
        <Serie>1</Serie>
        <nNF>1234</nNF>
        <dhEmi>2024-03-10T10:00:00-03:00</dhEmi>
        <tpNF>1</tpNF>
        <finNFe>1</finNFe>
      </ide>
      <emit>
        <CNPJ>12.345.678/0001-95</CNPJ>
        <xNome>VIDROS DISTRIBUIDORA LTDA</xNome>
        <xFant>VIDROS DIST</xFant>
        <enderEmit>
          <xLgr>RUA DAS FLORES</xLgr>
          <nro>100</nro>
          <xBairro>CENTRO</xBairro>
          <cMun>3550308</cMun>
          <xMun>SAO PAULO</xMun>
          <UF>SP</UF>
          <CEP>01001-000</CEP>
        </enderEmit>
        <IE>123456789</IE>
      </emit>
      <dest>
        <CNPJ>98765432000110</CNPJ>
        <xNome>AUTO VIDROS LTDA</xNome>
      </dest>
      <det nItem="1">
        <prod>
          <cProd>PB-001</cProd>
          <cEAN>7891234567895</cEAN>
          <xProd>PARA-BRISA GOL G5</xProd>
          <NCM>70071100</NCM>
          <CFOP>5102</CFOP>
          <uCom>UN</uCom>
          <qCom>2.0000</qCom>
          <vUnCom>500.00</vUnCom>
          <vProd>1000.00</vProd>
        </prod>
        <imposto>
          <ICMS>
            <ICMS00>
              <orig>0</orig>
              <CST>00</CST>
              <vBC>1000.00</vBC>
              <pICMS>18.00</pICMS>
              <vICMS>180.00</vICMS>
            </ICMS00>
          </ICMS>
          <IPI>
            <cEnq>999</cEnq>
            <IPINT><CST>53</CST></IPINT>
          </IPI>
          <PIS>
            <PISAliq>
              <CST>01</CST>
              <vBC>1000.00</vBC>
              <pPIS>1.65</pPIS>
              <vPIS>16.50</vPIS>
            </PISAliq>
          </PIS>
          <COFINS>
            <COFINSAliq>
              <CST>01</CST>
              <vBC>1000.00</vBC>
              <pCOFINS>7.60</pCOFINS>
              <vCOFINS>76.00</vCOFINS>
            </COFINSAliq>
          </COFINS>
        </imposto>
      </det>
      <det nItem="2">
        <prod>
          <cProd>BORR-10</cProd>
          <cEAN>SEM GTIN</cEAN>
          <xProd>BORRACHA DE VEDACAO</xProd>
          <NCM>4016.93</NCM>
          <CFOP>1102</CFOP>
          <uCom>CX</uCom>
          <qCom>5</qCom>
          <vUnCom>100.00</vUnCom>
          <vProd>500.00</vProd>
        </prod>
        <imposto>
          <ICMS>
            <ICMSSN102>
              <orig>0</orig>
              <CSOSN>102</CSOSN>
            </ICMSSN102>
          </ICMS>
        </imposto>
      </det>
      <total>
        <ICMSTot>
          <vBC>1000.00</vBC>
          <vICMS>180.00</vICMS>
          <vProd>1500.00</vProd>
          <vFrete>0.00</vFrete>
          <vSeg>0.00</vSeg>
          <vDesc>0.00</vDesc>
          <vIPI>0.00</vIPI>
          <vPIS>16.50</vPIS>
          <vCOFINS>76.00</vCOFINS>
          <vOutro>0.00</vOutro>
          <vNF>1500.00</vNF>
        </ICMSTot>
      </total>
    </infNFe>
  </NFe>
  <protNFe versao="4.00">
    <infProt>
      <chNFe>35240312345678000195550010000012341000012345</chNFe>
      <dhRecbto>2024-03-10T10:05:00-03:00</dhRecbto>
      <nProt>135240000000001</nProt>
      <cStat>100</cStat>
    </infProt>
  </protNFe>
</nfeProc>`

const nfeWithBilling = `<NFe xmlns="http://www.portalfiscal.inf.br/nfe">
  <infNFe Id="NFe35240412345678000195550020000000991000000991" versao="4.00">
    <ide>
      <natOp>DEVOLUCAO</natOp>
      <mod>55</mod>
      <serie>2</serie>
      <nNF>99</nNF>
      <dEmi>2024-04-01</dEmi>
      <finNFe>4</finNFe>
    </ide>
    <emit><CPF>123.456.789-09</CPF><xNome>JOAO DA SILVA</xNome></emit>
    <det nItem="1">
      <prod>
        <cProd>X1</cProd>
        <xProd>VIDRO LATERAL</xProd>
        <NCM>70072100</NCM>
        <uCom>UN</uCom>
        <qCom>1</qCom>
        <vUnCom>300,00</vUnCom>
        <vProd>300,00</vProd>
      </prod>
      <imposto/>
    </det>
    <total><ICMSTot><vProd>300.00</vProd><vNF>300.00</vNF></ICMSTot></total>
    <cobr>
      <dup><nDup>001</nDup><dVenc>2024-05-01</dVenc><vDup>150.00</vDup></dup>
      <dup><nDup>002</nDup><dVenc>2024-06-01</dVenc><vDup>150.00</vDup></dup>
    </cobr>
  </infNFe>
</NFe>`

const nfseLote = `<EnviarLoteRpsEnvio xmlns="http://www.abrasf.org.br/nfse.xsd">
  <LoteRps Id="L1">
    <NumeroLote>1</NumeroLote>
    <Cnpj>11222333000181</Cnpj>
    <InscricaoMunicipal>55555</InscricaoMunicipal>
    <QuantidadeRps>1</QuantidadeRps>
    <ListaRps>
      <Rps>
        <InfRps Id="R1">
          <IdentificacaoRps><Numero>77</Numero><Serie>A</Serie><Tipo>1</Tipo></IdentificacaoRps>
          <DataEmissao>2024-02-15T09:00:00</DataEmissao>
          <NaturezaOperacao>1</NaturezaOperacao>
          <Servico>
            <Valores>
              <ValorServicos>800.00</ValorServicos>
              <IssRetido>2</IssRetido>
              <ValorIss>40.00</ValorIss>
              <BaseCalculo>800.00</BaseCalculo>
              <Aliquota>5.00</Aliquota>
              <DescontoIncondicionado>50.00</DescontoIncondicionado>
            </Valores>
            <ItemListaServico>14.01</ItemListaServico>
            <CodigoTributacaoMunicipio>140101</CodigoTributacaoMunicipio>
            <Discriminacao>INSTALACAO DE PARA-BRISA</Discriminacao>
          </Servico>
          <Prestador><Cnpj>44555666000199</Cnpj><InscricaoMunicipal>123</InscricaoMunicipal></Prestador>
          <Tomador>
            <IdentificacaoTomador><CpfCnpj><Cnpj>98765432000110</Cnpj></CpfCnpj></IdentificacaoTomador>
            <RazaoSocial>AUTO VIDROS LTDA</RazaoSocial>
          </Tomador>
        </InfRps>
      </Rps>
    </ListaRps>
  </LoteRps>
</EnviarLoteRpsEnvio>`

const nfseLoteProviderOnLot = `<EnviarLoteRpsEnvio>
  <LoteRps>
    <CpfCnpj><Cnpj>11.222.333/0001-81</Cnpj></CpfCnpj>
    <ListaRps>
      <Rps>
        <InfDeclaracaoPrestacaoServico>
          <Rps><IdentificacaoRps><Numero>5</Numero><Serie>U</Serie></IdentificacaoRps><DataEmissao>2024-01-20</DataEmissao></Rps>
          <Competencia>2024-01-20</Competencia>
          <Servico>
            <Valores><ValorServicos>120.00</ValorServicos></Valores>
            <ItemListaServico>14.01</ItemListaServico>
            <Discriminacao>POLIMENTO</Discriminacao>
          </Servico>
        </InfDeclaracaoPrestacaoServico>
      </Rps>
    </ListaRps>
  </LoteRps>
</EnviarLoteRpsEnvio>`

const nfseBareInfo = `<InfRps>
  <IdentificacaoRps><Numero>9</Numero></IdentificacaoRps>
  <DataEmissao>2024-05-05</DataEmissao>
  <Servico><Valores><ValorServicos>60.00</ValorServicos></Valores></Servico>
  <Prestador><Cnpj>44555666000199</Cnpj></Prestador>
</InfRps>`

const nfseNoProvider = `<Rps>
  <InfRps>
    <IdentificacaoRps><Numero>10</Numero></IdentificacaoRps>
    <Servico><Valores><ValorServicos>60.00</ValorServicos></Valores></Servico>
  </InfRps>
</Rps>`
